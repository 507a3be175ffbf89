package playback

import (
	"reflect"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Set(d time.Duration)     { c.t = epoch.Add(d) }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// recorder keeps the lines currently on screen, in render order
type recorder struct {
	next    int
	shown   map[int]string
	order   []int
	renders int
	resets  int
}

func newRecorder() *recorder { return &recorder{shown: map[int]string{}} }

func (r *recorder) Render(ev Event) Handle {
	r.next++
	r.renders++
	r.shown[r.next] = ev.Content
	r.order = append(r.order, r.next)
	return r.next
}

func (r *recorder) Unrender(h Handle) {
	id := h.(int)
	if _, ok := r.shown[id]; !ok {
		panic("unrender of unknown handle")
	}
	delete(r.shown, id)
}

// Reset wipes the screen the way the viewer does after a clear
func (r *recorder) Reset() {
	r.resets++
	clear(r.shown)
}

func (r *recorder) lines() []string {
	var out []string
	for _, id := range r.order {
		if s, ok := r.shown[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func newTestBuffer(highlight func(string) bool) (*Buffer, *recorder, *fakeClock) {
	clk := &fakeClock{t: epoch}
	rec := newRecorder()
	b := New(rec, highlight)
	b.now = clk.Now
	b.delaySetAt = clk.Now()
	return b, rec, clk
}

func TestBuffer_ReleasesAfterDelay(t *testing.T) {
	b, rec, clk := newTestBuffer(nil)
	b.SetDelay(5 * time.Second)

	clk.Set(0)
	b.Push("first", "say")
	clk.Set(time.Second)
	b.Push("second", "say")

	clk.Set(4900 * time.Millisecond)
	b.Tick()
	if got := rec.lines(); len(got) != 0 {
		t.Fatalf("rendered %q at t=4.9s, want nothing", got)
	}

	clk.Set(5100 * time.Millisecond)
	b.Tick()
	if got, want := rec.lines(), []string{"first"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rendered %q at t=5.1s, want %q", got, want)
	}

	clk.Set(6 * time.Second)
	b.Tick()
	if got, want := rec.lines(), []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rendered %q at t=6s, want %q", got, want)
	}
}

func TestBuffer_DelayIncreaseReplays(t *testing.T) {
	tests := []struct {
		name  string
		times []time.Duration
		tick  time.Duration
		at    time.Duration
		want  []string
	}{
		{
			name:  "nothing old enough",
			times: []time.Duration{0, 500 * time.Millisecond},
			tick:  2600 * time.Millisecond,
			at:    3 * time.Second,
			want:  nil,
		},
		{
			name:  "older subset survives",
			times: []time.Duration{0, 11 * time.Second},
			tick:  13500 * time.Millisecond,
			at:    14 * time.Second,
			want:  []string{"e0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec, clk := newTestBuffer(nil)
			b.SetDelay(2 * time.Second)
			for i, at := range tt.times {
				clk.Set(at)
				b.Push("e"+string(rune('0'+i)), "kill")
			}
			clk.Set(tt.tick)
			b.Tick()
			if n := len(rec.lines()); n != 2 {
				t.Fatalf("rendered %d events under 2s delay, want 2", n)
			}

			resets := rec.resets
			clk.Set(tt.at)
			b.SetDelay(10 * time.Second)
			if rec.resets != resets+1 {
				t.Fatalf("Reset called %d times, want 1", rec.resets-resets)
			}
			if got := rec.lines(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("after increase rendered %q, want %q", got, tt.want)
			}
			wantMode := ModeBuffering
			if len(tt.want) > 0 {
				wantMode = ModeReady
			}
			if st := b.Status(); st.Mode != wantMode {
				t.Fatalf("Status().Mode = %v, want %v", st.Mode, wantMode)
			}
		})
	}
}

func TestBuffer_FlushToLive(t *testing.T) {
	b, rec, clk := newTestBuffer(nil)
	b.SetDelay(30 * time.Second)
	b.Push("a", "say")
	clk.Advance(time.Second)
	b.Push("b", "say")
	clk.Advance(31 * time.Second)
	b.Push("c", "say")
	b.Tick()
	if got := rec.lines(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("rendered %q before flush", got)
	}

	renders, resets := rec.renders, rec.resets
	b.SetDelay(0)
	if got, want := rec.lines(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after flush rendered %q, want %q", got, want)
	}
	if rec.renders != renders+1 {
		t.Fatalf("flush rendered %d lines, want only the held one", rec.renders-renders)
	}
	if rec.resets != resets {
		t.Fatalf("flush cleared output")
	}
	if st := b.Status(); st.Mode != ModeLive {
		t.Fatalf("Status().Mode = %v, want live", st.Mode)
	}
}

func TestBuffer_DelayDecreaseWaitsForTick(t *testing.T) {
	b, rec, clk := newTestBuffer(nil)
	b.SetDelay(20 * time.Second)
	b.Push("a", "say")
	clk.Advance(8 * time.Second)

	resets := rec.resets
	b.SetDelay(5 * time.Second)
	if rec.renders != 0 || rec.resets != resets {
		t.Fatalf("decrease rendered or reset immediately")
	}
	b.Tick()
	if got := rec.lines(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("rendered %q after tick, want [a]", got)
	}
}

func TestBuffer_HighlightToggleReplays(t *testing.T) {
	highlight := func(eventType string) bool { return eventType == "kill" }
	b, rec, clk := newTestBuffer(highlight)
	b.SetDelay(time.Second)

	b.Push("joined", "client_connect")
	b.Push("frag", "kill")
	b.Push("chat", "say")
	clk.Advance(2 * time.Second)
	b.Push("young frag", "kill")
	b.Tick()
	if got := rec.lines(); len(got) != 3 {
		t.Fatalf("rendered %q, want 3 lines", got)
	}
	resets := rec.resets

	b.SetHighlightOnly(true)
	if got, want := rec.lines(), []string{"frag"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("highlight-only rendered %q, want %q", got, want)
	}

	clk.Advance(time.Second)
	b.Tick()
	if got, want := rec.lines(), []string{"frag", "young frag"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after tick rendered %q, want %q", got, want)
	}

	b.SetHighlightOnly(false)
	if got := rec.lines(); len(got) != 4 {
		t.Fatalf("highlight off rendered %q, want all 4", got)
	}
	if rec.resets != resets+2 {
		t.Fatalf("Reset called %d times, want 2", rec.resets-resets)
	}
}

func TestBuffer_ReleaseOrder(t *testing.T) {
	b, rec, clk := newTestBuffer(nil)
	b.SetDelay(3 * time.Second)

	var want []string
	for i := 0; i < 50; i++ {
		line := string(rune('A' + i%26))
		want = append(want, line)
		b.Push(line, "other")
		clk.Advance(100 * time.Millisecond)
		b.Tick()
	}
	clk.Advance(10 * time.Second)
	b.Tick()
	if got := rec.lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("release order = %q, want %q", got, want)
	}
}

func TestBuffer_RetentionEvicts(t *testing.T) {
	b, rec, clk := newTestBuffer(nil)
	b.Push("old", "say")
	b.Tick()
	clk.Advance(60 * time.Second)
	b.Push("new", "say")
	b.Tick()

	clk.Advance(31 * time.Second)
	b.Tick()
	if b.Len() != 1 {
		t.Fatalf("Len() = %d after 91s, want 1", b.Len())
	}
	if got := rec.lines(); !reflect.DeepEqual(got, []string{"old", "new"}) {
		t.Fatalf("eviction changed the screen: %q", got)
	}

	// Replay only sees retained events
	b.SetDelay(10 * time.Second)
	if got, want := rec.lines(), []string{"new"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("replay rendered %q, want %q", got, want)
	}
}

func TestBuffer_Status(t *testing.T) {
	b, _, clk := newTestBuffer(nil)
	if st := b.Tick(); st.Mode != ModeLive || st.String() != "live" {
		t.Fatalf("empty buffer status = %+v", st)
	}

	b.SetDelay(30 * time.Second)
	clk.Advance(12 * time.Second)
	st := b.Tick()
	if st.Mode != ModeBuffering || st.Elapsed != 12*time.Second || st.Delay != 30*time.Second {
		t.Fatalf("status = %+v, want buffering 12s/30s", st)
	}

	b.Push("a", "say")
	clk.Advance(30 * time.Second)
	b.Push("b", "say")
	st = b.Tick()
	if st.Mode != ModeReady || st.Held != 1 || st.Ahead != 60*time.Second {
		t.Fatalf("status = %+v, want ready with 1 held, 60s ahead", st)
	}

	// Primed stays set while the delay is unchanged, even with nothing held
	clk.Advance(5 * time.Minute)
	if st := b.Tick(); st.Mode != ModeReady {
		t.Fatalf("status after drain = %v, want ready", st.Mode)
	}
}

func TestBuffer_ClampsDelay(t *testing.T) {
	b, _, _ := newTestBuffer(nil)
	b.SetDelay(5 * time.Minute)
	if b.Delay() != MaxDelay {
		t.Fatalf("Delay() = %v, want %v", b.Delay(), MaxDelay)
	}
	b.SetDelay(-time.Second)
	if b.Delay() != 0 {
		t.Fatalf("Delay() = %v, want 0", b.Delay())
	}
}
