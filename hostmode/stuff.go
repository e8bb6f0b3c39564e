package hostmode

// Stuff returns b with a 0x00 inserted after every Sync byte.
func Stuff(b []byte) []byte {
	return appendStuffed(make([]byte, 0, len(b)+len(b)/8+1), b)
}

func appendStuffed(dst, b []byte) []byte {
	for _, c := range b {
		dst = append(dst, c)
		if c == Sync {
			dst = append(dst, 0x00)
		}
	}
	return dst
}

// Unstuff reverses Stuff. A Sync byte that is not followed by 0x00 means
// the input was not produced by Stuff.
func Unstuff(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		out = append(out, c)
		if c != Sync {
			continue
		}
		if i+1 >= len(b) || b[i+1] != 0x00 {
			return nil, ErrStuffing
		}
		i++
	}
	return out, nil
}
