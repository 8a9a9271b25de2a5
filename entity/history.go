package entity

import "github.com/go-gl/mathgl/mgl64"

// Sample is a pose of an entity recorded after a simulation step.
type Sample struct {
	// Seq is the simulator-wide step number the sample was recorded at. It only ever increases.
	Seq      uint64
	Location mgl64.Vec2
	Heading  float64
	PenDown  bool
}

// History is a fixed-size circular buffer of samples.
type History struct {
	buffer   []Sample
	capacity int
	head     int // Points to the next write position
	size     int
}

// NewHistory creates a new history with the specified capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		buffer:   make([]Sample, capacity),
		capacity: capacity,
	}
}

// Add inserts a new sample, overwriting the oldest one if the history is full.
func (h *History) Add(s Sample) {
	h.buffer[h.head] = s
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Get retrieves a sample by sequence number.
func (h *History) Get(seq uint64) (Sample, bool) {
	// Search backwards from most recent
	for i := 0; i < h.size; i++ {
		s := h.at(i)
		if s.Seq == seq {
			return s, true
		}
		if s.Seq < seq {
			break
		}
	}
	return Sample{}, false
}

// Closest retrieves the sample with the sequence number closest to seq.
func (h *History) Closest(seq uint64) (Sample, bool) {
	if h.size == 0 {
		return Sample{}, false
	}

	var (
		closest     Sample
		closestDist uint64 = 1<<64 - 1
	)
	for i := 0; i < h.size; i++ {
		s := h.at(i)
		dist := s.Seq - seq
		if s.Seq < seq {
			dist = seq - s.Seq
		}
		if dist < closestDist {
			closestDist = dist
			closest = s
		}
	}
	return closest, true
}

// Since returns all samples with a sequence number strictly greater than seq, oldest first.
func (h *History) Since(seq uint64) []Sample {
	var n int
	for n < h.size && h.at(n).Seq > seq {
		n++
	}
	if n == 0 {
		return nil
	}

	result := make([]Sample, n)
	for i := 0; i < n; i++ {
		result[n-1-i] = h.at(i)
	}
	return result
}

// Latest returns the most recently added sample.
func (h *History) Latest() (Sample, bool) {
	if h.size == 0 {
		return Sample{}, false
	}
	return h.at(0), true
}

// Size returns the current number of samples in the history.
func (h *History) Size() int {
	return h.size
}

// Capacity returns the maximum number of samples the history holds.
func (h *History) Capacity() int {
	return h.capacity
}

// Clear removes all samples.
func (h *History) Clear() {
	h.head = 0
	h.size = 0
}

// at returns the i-th most recent sample.
func (h *History) at(i int) Sample {
	return h.buffer[(h.head-1-i+h.capacity)%h.capacity]
}

func (h *History) copyFrom(other *History) {
	copy(h.buffer, other.buffer)
	h.head = other.head
	h.size = other.size
}
