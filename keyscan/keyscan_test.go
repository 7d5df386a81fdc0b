// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package keyscan

import "testing"

type fakeDebounce struct {
	onTick func(raw uint8)
}

func (f *fakeDebounce) StartTick(onTick func(raw uint8)) { f.onTick = onTick }
func (f *fakeDebounce) StopTick()                        {}

func (f *fakeDebounce) feed(raw uint8, n int) {
	for i := 0; i < n; i++ {
		f.onTick(raw)
	}
}

func TestSoftwareDebounceRequiresConsecutiveSamples(t *testing.T) {
	src := &fakeDebounce{}
	s := NewSoftware(src)

	src.feed(uint8(KeyOK), debounceSamples-1)
	s.Poll()
	if s.Pressed(KeyOK) {
		t.Fatalf("Pressed(KeyOK) = true before debounce threshold reached")
	}

	src.feed(uint8(KeyOK), 1)
	s.Poll()
	if !s.Pressed(KeyOK) {
		t.Fatalf("Pressed(KeyOK) = false after debounce threshold reached")
	}
}

func TestSoftwareDebounceResetsOnBounce(t *testing.T) {
	src := &fakeDebounce{}
	s := NewSoftware(src)

	src.feed(uint8(KeyOK), debounceSamples-1)
	src.feed(0, 1) // bounce back to released, resets the run counter
	src.feed(uint8(KeyOK), debounceSamples-1)
	s.Poll()

	if s.Pressed(KeyOK) {
		t.Fatalf("Pressed(KeyOK) = true, bounce should have reset the debounce run")
	}
}

func TestDebounceCommitIsNotVisibleBeforeForegroundPoll(t *testing.T) {
	src := &fakeDebounce{}
	s := NewSoftware(src)

	src.feed(uint8(KeyOK), debounceSamples)
	if s.Pressed(KeyOK) {
		t.Fatalf("Pressed(KeyOK) = true before Poll latched the ISR-committed state")
	}

	s.Poll()
	if !s.Pressed(KeyOK) {
		t.Fatalf("Pressed(KeyOK) = false after Poll latched the ISR-committed state")
	}
}

func TestReleaseIsEdgeTriggered(t *testing.T) {
	src := &fakeDebounce{}
	s := NewSoftware(src)

	src.feed(uint8(KeyBack), debounceSamples)
	s.Poll()
	if s.Released(KeyBack) {
		t.Fatalf("Released(KeyBack) = true while still held down")
	}

	src.feed(0, debounceSamples)
	s.Poll()
	if !s.Released(KeyBack) {
		t.Fatalf("Released(KeyBack) = false on the release edge")
	}

	// The edge is a one-shot transition, not a held condition: once the
	// old/current pair both read "up", Released must go false again.
	src.feed(0, debounceSamples)
	s.Poll()
	if s.Released(KeyBack) {
		t.Fatalf("Released(KeyBack) stayed true past the single transition sample")
	}
}

func TestHardwareScannerPoll(t *testing.T) {
	port := &fakePort{}
	s := NewHardware(port)

	port.value = uint8(KeyUp)
	s.Poll()
	if !s.Pressed(KeyUp) {
		t.Fatalf("Pressed(KeyUp) = false after Poll observed it held")
	}

	port.value = 0
	s.Poll()
	if !s.Released(KeyUp) {
		t.Fatalf("Released(KeyUp) = false on hardware-debounced release edge")
	}
}

type fakePort struct {
	value uint8
}

func (f *fakePort) Read() uint8 { return f.value }
