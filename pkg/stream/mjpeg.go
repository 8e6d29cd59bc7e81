package stream

import (
	"io"
)

// Boundary separates parts of the MJPEG stream.
const Boundary = "frame"

// ContentType is the response content type of an MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTrailer = []byte("\r\n")
)

// WritePart writes one self-terminated multipart part holding frame.
func WritePart(w io.Writer, frame []byte) error {
	if _, err := w.Write(partHeader); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write(partTrailer)
	return err
}
