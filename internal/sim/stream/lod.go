package stream

// Band maps Chebyshev distances up to and including MaxDistance to Stride.
type Band struct {
	MaxDistance int
	Stride      int
}

// LODPolicy picks a render stride from the distance between a placement
// and the observer. Bands are checked in order; distances past the last
// band use FarStride.
type LODPolicy struct {
	Bands     []Band
	FarStride int
}

func DefaultLOD() LODPolicy {
	return LODPolicy{
		Bands:     []Band{{MaxDistance: 2, Stride: 1}, {MaxDistance: 8, Stride: 1}, {MaxDistance: 20, Stride: 1}},
		FarStride: 6,
	}
}

func (p LODPolicy) Stride(d int) int {
	for _, b := range p.Bands {
		if d <= b.MaxDistance {
			return max(b.Stride, 1)
		}
	}
	return max(p.FarStride, 1)
}
