package replay

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/internal/domain/model"
)

// Synthetic session shape constants.
const (
	humanStrokes        = 3
	humanStrokeSteps    = 30
	humanJitterPx       = 1.5
	humanMoveMeanMS     = 12.0
	humanKeyMeanMS      = 140.0
	humanKeySpreadMS    = 45.0
	humanTypoRate       = 0.08
	humanSwipeSteps     = 10
	humanTailMS         = 500
	botSteps            = 50
	botStepMS           = 10
	botKeyMS            = 40
	screenMargin        = 40.0
	pressureMin         = 0.3
	pressureRange       = 0.4
	rttMin              = 40.0
	rttRange            = 120.0
	minKeyIntervalMS    = 20.0
	clickHoldMinMS      = 60.0
	clickHoldRangeMS    = 80.0
	rolloverProbability = 0.5
)

var (
	humanWords  = []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog", "hello", "world", "sign", "in"}
	humanAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
	}
	humanScreens = [][2]int{{1920, 1080}, {1440, 900}, {390, 844}}
	botAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/124.0 Safari/537.36"
	botText      = "password123"
)

// Generator produces synthetic sessions. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator whose output is fully determined by seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate returns n sessions. The mixed profile alternates human and bot.
func (g *Generator) Generate(n int, p Profile) []Recording {
	out := make([]Recording, n)
	for i := range out {
		switch {
		case p == ProfileBot, p == ProfileMixed && i%2 == 1:
			out[i] = g.Bot()
		default:
			out[i] = g.Human()
		}
	}
	return out
}

// Human generates a session with curved, jittery pointer strokes, irregular
// typing with corrections, a pressure-varying swipe and device readings.
func (g *Generator) Human() Recording {
	screen := humanScreens[g.rng.IntN(len(humanScreens))]
	w, h := float64(screen[0]), float64(screen[1])
	rtt := rttMin + g.rng.Float64()*rttRange

	var (
		frames []capture.Frame
		t      float64
	)
	x, y := g.point(w, h)
	for range humanStrokes {
		tx, ty := g.point(w, h)
		cx, cy := g.point(w, h)
		for i := 1; i <= humanStrokeSteps; i++ {
			s := float64(i) / humanStrokeSteps
			// Quadratic curve through a random control point.
			px := (1-s)*(1-s)*x + 2*(1-s)*s*cx + s*s*tx + g.rng.NormFloat64()*humanJitterPx
			py := (1-s)*(1-s)*y + 2*(1-s)*s*cy + s*s*ty + g.rng.NormFloat64()*humanJitterPx
			t += 1 + g.rng.ExpFloat64()*humanMoveMeanMS
			frames = append(frames, capture.MouseFrame(model.MouseSample{Kind: model.MouseMove, X: px, Y: py, T: round(t)}))
		}
		x, y = tx, ty
		t += 1 + g.rng.ExpFloat64()*humanMoveMeanMS
		frames = append(frames, capture.MouseFrame(model.MouseSample{Kind: model.MouseDown, X: x, Y: y, T: round(t)}))
		t += clickHoldMinMS + g.rng.Float64()*clickHoldRangeMS
		frames = append(frames, capture.MouseFrame(model.MouseSample{Kind: model.MouseUp, X: x, Y: y, T: round(t)}))
	}

	frames, t = g.typeHuman(frames, t)
	frames, t = g.swipe(frames, t, w, h)

	frames = append(frames,
		capture.OrientationFrame(model.Orientation{Alpha: f64(g.rng.Float64() * 360), Beta: f64(g.rng.NormFloat64() * 10), Gamma: f64(g.rng.NormFloat64() * 5)}),
		capture.MotionFrame(model.Motion{
			AccelerationIncludingGravity: &model.Vector{X: f64(g.rng.NormFloat64() * 0.2), Y: f64(9.81 + g.rng.NormFloat64()*0.1), Z: f64(g.rng.NormFloat64() * 0.2)},
			Interval:                     16,
		}),
	)

	return Recording{
		SessionID:  g.id(),
		Profile:    ProfileHuman,
		DurationMS: int64(t) + humanTailMS,
		Env: aggregate.Device{
			UserAgent:    humanAgents[g.rng.IntN(len(humanAgents))],
			ScreenWidth:  screen[0],
			ScreenHeight: screen[1],
			Connection:   &aggregate.Connection{EffectiveType: "4g", RTT: f64(math.Round(rtt))},
		},
		Frames: frames,
	}
}

// typeHuman types a few words. Every other key is pressed before the
// previous one is released, and occasional typos are corrected with Backspace.
func (g *Generator) typeHuman(frames []capture.Frame, t float64) ([]capture.Frame, float64) {
	n := 3 + g.rng.IntN(3)
	words := make([]string, n)
	for i := range words {
		words[i] = humanWords[g.rng.IntN(len(humanWords))]
	}
	var keys []string
	for _, r := range strings.Join(words, " ") {
		if g.rng.Float64() < humanTypoRate {
			keys = append(keys, string(rune('a'+g.rng.IntN(26))), "Backspace")
		}
		keys = append(keys, string(r))
	}

	pending := ""
	for i, k := range keys {
		t += math.Max(minKeyIntervalMS, humanKeyMeanMS+g.rng.NormFloat64()*humanKeySpreadMS)
		frames = append(frames, capture.KeyFrame(model.KeySample{Kind: model.KeyDown, Key: k, T: round(t)}))
		if pending != "" {
			frames = append(frames, capture.KeyFrame(model.KeySample{Kind: model.KeyUp, Key: pending, T: round(t + 5)}))
			pending = ""
		}
		if i%2 == 0 || g.rng.Float64() < rolloverProbability {
			pending = k
			continue
		}
		t += 30 + g.rng.Float64()*40
		frames = append(frames, capture.KeyFrame(model.KeySample{Kind: model.KeyUp, Key: k, T: round(t)}))
	}
	if pending != "" {
		t += humanKeyMeanMS
		frames = append(frames, capture.KeyFrame(model.KeySample{Kind: model.KeyUp, Key: pending, T: round(t)}))
	}
	return frames, t + humanKeyMeanMS
}

func (g *Generator) swipe(frames []capture.Frame, t, w, h float64) ([]capture.Frame, float64) {
	x, y := g.point(w, h)
	dx, dy := g.rng.NormFloat64()*20, g.rng.NormFloat64()*20
	kinds := make([]model.TouchKind, humanSwipeSteps)
	for i := range kinds {
		kinds[i] = model.TouchMove
	}
	kinds[0], kinds[len(kinds)-1] = model.TouchStart, model.TouchEnd
	for _, k := range kinds {
		t += 8 + g.rng.ExpFloat64()*humanMoveMeanMS
		x, y = x+dx+g.rng.NormFloat64(), y+dy+g.rng.NormFloat64()
		frames = append(frames, capture.TouchFrame(model.TouchEvent{
			Kind:   k,
			T:      round(t),
			Points: []model.TouchPoint{{X: x, Y: y, Pressure: f64(pressureMin + g.rng.Float64()*pressureRange)}},
		}))
	}
	return frames, t
}

// Bot generates a scripted session: a straight pointer path at a fixed
// cadence, keys fired at a fixed interval without releases, and nothing else.
func (g *Generator) Bot() Recording {
	var (
		frames []capture.Frame
		t      float64
	)
	tx, ty := 500.0, 300.0
	for i := 1; i <= botSteps; i++ {
		t += botStepMS
		s := float64(i) / botSteps
		frames = append(frames, capture.MouseFrame(model.MouseSample{Kind: model.MouseMove, X: s * tx, Y: s * ty, T: t}))
	}
	t += botStepMS
	frames = append(frames, capture.MouseFrame(model.MouseSample{Kind: model.MouseDown, X: tx, Y: ty, T: t}))
	t += botStepMS
	frames = append(frames, capture.MouseFrame(model.MouseSample{Kind: model.MouseUp, X: tx, Y: ty, T: t}))

	for _, r := range botText {
		t += botKeyMS
		frames = append(frames, capture.KeyFrame(model.KeySample{Kind: model.KeyDown, Key: string(r), T: t}))
	}

	return Recording{
		SessionID:  g.id(),
		Profile:    ProfileBot,
		DurationMS: int64(t),
		Env:        aggregate.Device{UserAgent: botAgent, ScreenWidth: 800, ScreenHeight: 600},
		Frames:     frames,
	}
}

// id derives a session id from the generator stream so seeded runs repeat.
func (g *Generator) id() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], g.rng.Uint64())
	return uuid.NewSHA1(uuid.NameSpaceOID, b[:]).String()
}

// point returns a random point inside the screen margins.
func (g *Generator) point(w, h float64) (float64, float64) {
	return screenMargin + g.rng.Float64()*(w-2*screenMargin), screenMargin + g.rng.Float64()*(h-2*screenMargin)
}

func f64(v float64) *float64 { return &v }

// round keeps timestamps at browser millisecond resolution.
func round(t float64) float64 { return math.Round(t) }
