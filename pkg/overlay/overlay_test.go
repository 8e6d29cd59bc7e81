package overlay

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func grayFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 20
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBasicDrawsLabel(t *testing.T) {
	a := NewBasic(90)
	out, err := a.Annotate(grayFrame(t, 320, 240), "2024-05-01 12:00:00")
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("annotated frame does not decode: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Errorf("size changed to %v", img.Bounds())
	}

	bright := 0
	for y := Origin.Y - 13; y <= Origin.Y; y++ {
		for x := Origin.X; x < Origin.X+19*7; x++ {
			if g := color.GrayModel.Convert(img.At(x, y)).(color.Gray); g.Y > 150 {
				bright++
			}
		}
	}
	if bright == 0 {
		t.Error("no label pixels found near origin")
	}

	// far corner stays dark
	if g := color.GrayModel.Convert(img.At(300, 220)).(color.Gray); g.Y > 60 {
		t.Errorf("background pixel = %d", g.Y)
	}
}

func TestBasicRejectsGarbage(t *testing.T) {
	_, err := NewBasic(0).Annotate([]byte("not a jpeg"), "x")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Annotate() = %v, want ErrDecode", err)
	}
}

func TestPassthrough(t *testing.T) {
	in := []byte{1, 2, 3}
	out, err := Passthrough{}.Annotate(in, "ignored")
	if err != nil || !bytes.Equal(in, out) {
		t.Errorf("Annotate() = %v, %v", out, err)
	}
	if _, err := (Passthrough{}).Annotate(nil, ""); !errors.Is(err, ErrDecode) {
		t.Errorf("empty frame: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	a, err := New(NameBasic, 70)
	if err != nil {
		t.Fatalf("New(basic): %v", err)
	}
	if b, ok := a.(*Basic); !ok || b.Quality != 70 {
		t.Errorf("New(basic) = %#v", a)
	}

	a, err = New(NameNone, 0)
	if err != nil {
		t.Fatalf("New(none): %v", err)
	}
	if _, ok := a.(Passthrough); !ok {
		t.Errorf("New(none) = %T", a)
	}

	if _, err := New("neon", 0); !errors.Is(err, ErrUnknownAnnotator) {
		t.Errorf("err = %v, want ErrUnknownAnnotator", err)
	}
}
