package camera

// ToWire renders a set in the HTTP representation: wire keys, exposure
// time in milliseconds and enum codes as symbolic names.
func ToWire(s ParameterSet) map[string]any {
	out := make(map[string]any, s.Len())
	for p, v := range s.All() {
		spec := SpecOf(p)
		switch {
		case p == ExposureTime:
			out[spec.Key] = float64(v.Int()) / microsPerMilli
		case spec.Kind == KindEnum:
			if name := spec.Enum.NameOf(v.Int()); name != "" {
				out[spec.Key] = name
			} else {
				out[spec.Key] = v.Int()
			}
		default:
			out[spec.Key] = v.Any()
		}
	}
	return out
}
