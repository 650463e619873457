package graph_test

import (
	"math"
	"testing"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

func ramp(n int) *graph.Buffer {
	data := make(kaiku.AudioBuffer, n)
	for i := range data {
		v := float32(i) / float32(n)
		data[i] = [2]float32{v, -v}
	}
	return &graph.Buffer{SampleRate: 1000, Data: data}
}

func dc(n int, v float32) *graph.Buffer {
	data := make(kaiku.AudioBuffer, n)
	for i := range data {
		data[i] = [2]float32{v, v}
	}
	return &graph.Buffer{SampleRate: 1000, Data: data}
}

func TestBufferSourceOffsetAndDuration(t *testing.T) {
	ctx := graph.NewContext(1000)
	buf := ramp(1000)
	src := graph.NewBufferSource(ctx, buf)
	ended := 0
	src.OnEnded(func() { ended++ })
	src.Start(0.1, 0.2, 0.3)
	graph.Connect(src, ctx.Destination())
	out := ctx.Render(1000)
	if out[99] != [2]float32{} {
		t.Fatalf("source played before its start: %v", out[99])
	}
	if out[100] != buf.Data[200] || out[399] != buf.Data[499] {
		t.Fatalf("offset not honored: got %v %v", out[100], out[399])
	}
	if out[400] != [2]float32{} {
		t.Fatalf("source played past its duration: %v", out[400])
	}
	if ended != 1 || !src.Ended() {
		t.Fatalf("ended callback ran %v times", ended)
	}
}

func TestBufferSourceLoops(t *testing.T) {
	ctx := graph.NewContext(1000)
	buf := ramp(100)
	src := graph.NewBufferSource(ctx, buf)
	src.Loop = true
	src.Start(0, 0.05, 0.2)
	graph.Connect(src, ctx.Destination())
	out := ctx.Render(300)
	if out[0] != buf.Data[50] || out[50] != buf.Data[0] || out[149] != buf.Data[99] {
		t.Fatalf("loop did not wrap to the buffer start")
	}
	if out[200] != [2]float32{} {
		t.Fatalf("looping source did not stop")
	}
}

func TestStopBeforeStartEndsSource(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, dc(100, 1))
	src.Stop(0)
	src.Start(0, 0, 0)
	graph.Connect(src, ctx.Destination())
	out := ctx.Render(128)
	if out[0] != [2]float32{} || !src.Ended() {
		t.Fatalf("stopped source still playing")
	}
}

func TestGainRamp(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, dc(2000, 1))
	src.Start(0, 0, 0)
	g := graph.NewGain(ctx, 0)
	g.Gain.SetValueAtTime(0, 0)
	g.Gain.LinearRampToValueAtTime(1, 1)
	graph.Connect(src, g)
	graph.Connect(g, ctx.Destination())
	out := ctx.Render(1500)
	for _, i := range []int{0, 250, 500, 999} {
		if want := float64(i) / 1000; math.Abs(float64(out[i][0])-want) > 1e-6 {
			t.Fatalf("sample %v = %v, want %v", i, out[i][0], want)
		}
	}
	if out[1200][0] != 1 {
		t.Fatalf("gain did not hold after the ramp: %v", out[1200][0])
	}
}

func TestPanner(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, &graph.Buffer{SampleRate: 1000, Data: kaiku.AudioBuffer{{1, 0}, {0, 1}}})
	src.Start(0, 0, 0)
	p := graph.NewStereoPanner(ctx, -1)
	graph.Connect(src, p)
	graph.Connect(p, ctx.Destination())
	out := ctx.Render(2)
	for i := range out {
		if math.Abs(float64(out[i][0])-1) > 1e-6 || math.Abs(float64(out[i][1])) > 1e-6 {
			t.Fatalf("hard left pan of frame %v gave %v", i, out[i])
		}
	}
}

func TestFanOutRendersOnce(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, dc(1000, 0.25))
	src.Start(0, 0, 0)
	a, b := graph.NewGain(ctx, 1), graph.NewGain(ctx, 1)
	graph.Connect(src, a)
	graph.Connect(src, b)
	graph.Connect(a, ctx.Destination())
	graph.Connect(b, ctx.Destination())
	out := ctx.Render(256)
	if out[200][0] != 0.5 {
		t.Fatalf("fan-out sum %v, want 0.5", out[200][0])
	}
	graph.Disconnect(src)
	if graph.Inputs(a) != 0 || graph.Outputs(src) != 0 {
		t.Fatalf("Disconnect left connections behind")
	}
	out = ctx.Render(128)
	if out[0][0] != 0 {
		t.Fatalf("disconnected source still audible")
	}
}

func TestMeter(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, dc(1000, -0.5))
	src.Start(0, 0, 0)
	m := graph.NewMeter(ctx)
	graph.Connect(src, m)
	graph.Connect(m, ctx.Destination())
	if m.Level() != 0 {
		t.Fatalf("meter level before rendering %v", m.Level())
	}
	ctx.Render(256)
	if math.Abs(m.Level()-0.5) > 1e-6 {
		t.Fatalf("meter level %v, want 0.5", m.Level())
	}
	ctx.Render(2000)
	if m.Level() >= 0.5 {
		t.Fatalf("meter did not fall back after the source ended: %v", m.Level())
	}
}

func TestClockAdvances(t *testing.T) {
	ctx := graph.NewContext(1000)
	ctx.Render(500)
	if ctx.Now() != 0.5 || ctx.Frame() != 500 {
		t.Fatalf("clock at %v (%v frames), want 0.5", ctx.Now(), ctx.Frame())
	}
}

func TestCompressor(t *testing.T) {
	for _, tc := range []struct {
		name   string
		bypass bool
		lo, hi float64
	}{
		{"active", false, 0.1, 0.3},
		{"bypassed", true, 0.9 - 1e-6, 0.9 + 1e-6},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := graph.NewContext(1000)
			src := graph.NewBufferSource(ctx, dc(2000, 0.9))
			src.Start(0, 0, 0)
			comp, err := graph.NewCompressor(ctx, kaiku.Compressor{Threshold: -20, Knee: 0, Ratio: 4, Attack: 0.001, Release: 0.1})
			if err != nil {
				t.Fatalf("NewCompressor failed: %v", err)
			}
			comp.SetBypass(tc.bypass)
			graph.Connect(src, comp)
			graph.Connect(comp, ctx.Destination())
			out := ctx.Render(1024)
			if v := float64(out[1000][0]); v < tc.lo || v > tc.hi {
				t.Fatalf("output %v, want within [%v, %v]", v, tc.lo, tc.hi)
			}
		})
	}
}

func TestCompressorFollowsThreshold(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, dc(2000, 0.9))
	src.Start(0, 0, 0)
	comp, err := graph.NewCompressor(ctx, kaiku.Compressor{Threshold: -20, Knee: 0, Ratio: 4, Attack: 0.001, Release: 0.1})
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	graph.Connect(src, comp)
	graph.Connect(comp, ctx.Destination())
	if out := ctx.Render(512); out[500][0] > 0.3 {
		t.Fatalf("signal above threshold was not compressed: %v", out[500][0])
	}
	comp.Threshold.SetValue(0)
	if out := ctx.Render(256); out[200][0] < 0.85 {
		t.Fatalf("signal below the raised threshold stayed compressed: %v", out[200][0])
	}
}

func TestDelayEchoes(t *testing.T) {
	ctx := graph.NewContext(1000)
	src := graph.NewBufferSource(ctx, &graph.Buffer{SampleRate: 1000, Data: kaiku.AudioBuffer{{1, -1}}})
	src.Start(0, 0, 0)
	d := graph.NewDelay(ctx, 0.1, 0.5)
	graph.Connect(src, d)
	graph.Connect(d, ctx.Destination())
	out := ctx.Render(512)
	for i := 0; i < 100; i++ {
		if out[i] != [2]float32{} {
			t.Fatalf("delay output before the delay time at frame %v: %v", i, out[i])
		}
	}
	if out[100] != [2]float32{1, -1} {
		t.Fatalf("first echo %v, want the dry impulse", out[100])
	}
	sum := 0.0
	for _, f := range out[190:290] {
		sum += float64(f[0])
	}
	if sum < 0.4 || sum > 0.6 {
		t.Fatalf("second echo carries %v, want about the feedback of 0.5", sum)
	}
	if out[200][0] >= 0.5 {
		t.Fatalf("second echo was not damped: %v", out[200][0])
	}
}

func TestEQRampIsContinuous(t *testing.T) {
	ctx := graph.NewContext(44100)
	data := make(kaiku.AudioBuffer, 60000)
	for i := range data {
		data[i] = [2]float32{0.5, 0.5}
	}
	src := graph.NewBufferSource(ctx, &graph.Buffer{SampleRate: 44100, Data: data})
	src.Start(0, 0, 0)
	eq := graph.NewEQ3(ctx)
	eq.Low.SetValueAtTime(0, 0)
	eq.Low.LinearRampToValueAtTime(6, 1)
	graph.Connect(src, eq)
	graph.Connect(eq, ctx.Destination())
	out := ctx.Render(50000)
	for i := 1; i < len(out); i++ {
		if d := math.Abs(float64(out[i][0] - out[i-1][0])); d > 0.02 {
			t.Fatalf("jump of %v at frame %v", d, i)
		}
	}
	if want := 0.5 * math.Pow(10, 6.0/20); math.Abs(float64(out[49000][0])-want) > 0.01 {
		t.Fatalf("settled at %v, want %v", out[49000][0], want)
	}
}
