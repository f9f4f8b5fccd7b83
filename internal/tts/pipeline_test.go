package tts

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/example/go-supertonic-tts/internal/asset"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/testutil"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
	"github.com/example/go-supertonic-tts/internal/voice"
)

func asciiIndexer() *tokenizer.UnicodeIndexer {
	table := make([]int64, 128)
	for i := range table {
		table[i] = int64(i)
	}

	return tokenizer.NewUnicodeIndexer(table)
}

func zeroNoise() float64 { return 0 }

func newTestPipeline(t *testing.T, fakes *testutil.FakeGraphs) *Pipeline {
	t.Helper()

	return NewPipeline(fakes.Engine(), asciiIndexer(), fixtureModel(), WithNoise(zeroNoise))
}

func testStyle(t *testing.T) *voice.Style {
	t.Helper()

	s, err := voice.ParseStyle(testutil.StyleJSON(0.1))
	if err != nil {
		t.Fatalf("ParseStyle: %v", err)
	}

	return s
}

func assertAll(t *testing.T, audio []float32, want float32) {
	t.Helper()

	for i, v := range audio {
		if v != want {
			t.Fatalf("audio[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"zero steps", Params{TotalSteps: 0, Speed: 1}, false},
		{"zero speed", Params{TotalSteps: 5, Speed: 0}, true},
		{"negative speed", Params{TotalSteps: 5, Speed: -1}, true},
		{"NaN speed", Params{TotalSteps: 5, Speed: math.NaN()}, true},
		{"negative steps", Params{TotalSteps: -1, Speed: 1}, true},
		{"negative silence", Params{TotalSteps: 5, Speed: 1, SilenceSeconds: -0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("error %v is not ErrInvalidParameter", err)
			}
		})
	}
}

func TestSynthesizeSingleChunk(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	res, err := p.Synthesize(context.Background(), "Hello world.", "en", testStyle(t), Params{TotalSteps: 2, Speed: 1, SilenceSeconds: 0.3})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.SampleRate != 16 {
		t.Fatalf("SampleRate = %d, want 16", res.SampleRate)
	}

	if len(res.Audio) != 16 {
		t.Fatalf("len(audio) = %d, want 16", len(res.Audio))
	}

	assertAll(t, res.Audio, 2)

	if res.Duration != 1.0 {
		t.Fatalf("Duration = %v, want 1", res.Duration)
	}

	if got := len(fakes.Estimator.Calls()); got != 2 {
		t.Fatalf("estimator calls = %d, want 2", got)
	}

	ids := fakes.Duration.Calls()[0]["text_ids"]
	want := len([]rune("<en>Hello world.</en>"))
	if ids.Dim(1) != want {
		t.Fatalf("text_ids length = %d, want %d", ids.Dim(1), want)
	}
}

func TestSynthesizeZeroStepsRunsVocoderOnNoise(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	res, err := p.Synthesize(context.Background(), "Hello world.", "en", testStyle(t), Params{TotalSteps: 0, Speed: 1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(fakes.Estimator.Calls()) != 0 {
		t.Fatal("estimator ran with zero steps")
	}

	if len(fakes.Vocoder.Calls()) != 1 {
		t.Fatal("vocoder did not run")
	}

	assertAll(t, res.Audio, 0)
}

func TestSynthesizeSpeedScalesDuration(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	res, err := p.Synthesize(context.Background(), "Hi.", "en", testStyle(t), Params{TotalSteps: 1, Speed: 2})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.Duration != 0.5 {
		t.Fatalf("Duration = %v, want 0.5", res.Duration)
	}

	if len(res.Audio) != 8 {
		t.Fatalf("len(audio) = %d, want 8", len(res.Audio))
	}

	latent := fakes.Vocoder.Calls()[0]["latent"]
	if latent.Dim(1) != 2 || latent.Dim(2) != 2 {
		t.Fatalf("latent shape = %v, want [1 2 2]", latent.Shape())
	}
}

func TestSynthesizeEstimatorStepInputs(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	if _, err := p.Synthesize(context.Background(), "Hi.", "en", testStyle(t), Params{TotalSteps: 3, Speed: 1}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	calls := fakes.Estimator.Calls()
	if len(calls) != 3 {
		t.Fatalf("estimator calls = %d, want 3", len(calls))
	}

	for i, in := range calls {
		cur, _ := onnx.ExtractFloat32(in["current_step"])
		total, _ := onnx.ExtractFloat32(in["total_step"])

		if len(cur) != 1 || cur[0] != float32(i) {
			t.Errorf("step %d: current_step = %v", i, cur)
		}

		if len(total) != 1 || total[0] != 3 {
			t.Errorf("step %d: total_step = %v", i, total)
		}
	}
}

func TestSynthesizeMultipleChunksInsertsSilence(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	input := strings.Repeat("This sentence is long enough to need a few chunks overall. ", 12)
	n := len(text.Chunk(input, text.MaxChunkLength("en")))
	if n < 2 {
		t.Fatalf("fixture produced %d chunks, want at least 2", n)
	}

	res, err := p.Synthesize(context.Background(), input, "en", testStyle(t), Params{TotalSteps: 1, Speed: 1, SilenceSeconds: 0.25})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if got := len(fakes.Vocoder.Calls()); got != n {
		t.Fatalf("vocoder calls = %d, want %d", got, n)
	}

	wantLen := n*16 + (n-1)*4
	if len(res.Audio) != wantLen {
		t.Fatalf("len(audio) = %d, want %d", len(res.Audio), wantLen)
	}

	wantDur := float64(n) + float64(n-1)*0.25
	if math.Abs(res.Duration-wantDur) > 1e-9 {
		t.Fatalf("Duration = %v, want %v", res.Duration, wantDur)
	}

	for i := 16; i < 20; i++ {
		if res.Audio[i] != 0 {
			t.Fatalf("audio[%d] = %v, want silence", i, res.Audio[i])
		}
	}
}

func TestSynthesizeEmptyTextRunsNoStage(t *testing.T) {
	for _, input := range []string{"", "   \n\t"} {
		fakes := testutil.NewFakeGraphs(1.0)
		p := newTestPipeline(t, fakes)

		res, err := p.Synthesize(context.Background(), input, "en", testStyle(t), DefaultParams())
		if err != nil {
			t.Fatalf("Synthesize(%q): %v", input, err)
		}

		if len(res.Audio) != 0 || res.Duration != 0 {
			t.Fatalf("Synthesize(%q) = %d samples, %v s; want empty", input, len(res.Audio), res.Duration)
		}

		if len(fakes.Duration.Calls()) != 0 {
			t.Fatalf("Synthesize(%q) ran the duration predictor", input)
		}
	}
}

func TestSynthesizeRejectsBeforeInference(t *testing.T) {
	tests := []struct {
		name   string
		lang   string
		params Params
		want   error
	}{
		{"unknown language", "xx", DefaultParams(), ErrInvalidLanguage},
		{"empty language", "", DefaultParams(), ErrInvalidLanguage},
		{"zero speed", "en", Params{TotalSteps: 5, Speed: 0}, ErrInvalidParameter},
		{"negative steps", "en", Params{TotalSteps: -2, Speed: 1}, ErrInvalidParameter},
		{"negative silence", "en", Params{TotalSteps: 5, Speed: 1, SilenceSeconds: -1}, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakes := testutil.NewFakeGraphs(1.0)
			p := newTestPipeline(t, fakes)

			_, err := p.Synthesize(context.Background(), "Hello.", tt.lang, testStyle(t), tt.params)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}

			if len(fakes.Duration.Calls()) != 0 {
				t.Fatal("duration predictor ran")
			}
		})
	}
}

func TestSynthesizeInvalidLanguageWithEmptyText(t *testing.T) {
	p := newTestPipeline(t, testutil.NewFakeGraphs(1.0))

	_, err := p.Synthesize(context.Background(), "", "de", testStyle(t), DefaultParams())
	if !errors.Is(err, ErrInvalidLanguage) {
		t.Fatalf("error = %v, want ErrInvalidLanguage", err)
	}
}

func TestSynthesizeStageFailure(t *testing.T) {
	cause := errors.New("ort exploded")

	tests := []struct {
		stage      string
		breakStage func(*testutil.FakeGraphs)
	}{
		{onnx.GraphDurationPredictor, func(f *testutil.FakeGraphs) { f.Duration.Fn = fail(cause) }},
		{onnx.GraphTextEncoder, func(f *testutil.FakeGraphs) { f.Encoder.Fn = fail(cause) }},
		{onnx.GraphVectorEstimator, func(f *testutil.FakeGraphs) { f.Estimator.Fn = fail(cause) }},
		{onnx.GraphVocoder, func(f *testutil.FakeGraphs) { f.Vocoder.Fn = fail(cause) }},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			fakes := testutil.NewFakeGraphs(1.0)
			tt.breakStage(fakes)
			p := newTestPipeline(t, fakes)

			res, err := p.Synthesize(context.Background(), "Hello.", "en", testStyle(t), Params{TotalSteps: 2, Speed: 1})
			if !errors.Is(err, ErrInferenceFailure) {
				t.Fatalf("error = %v, want ErrInferenceFailure", err)
			}

			if !errors.Is(err, cause) {
				t.Fatalf("error %v does not wrap the cause", err)
			}

			var te *Error
			if !errors.As(err, &te) || te.Stage != tt.stage {
				t.Fatalf("stage = %q, want %q", te.Stage, tt.stage)
			}

			if res.Audio != nil {
				t.Fatal("partial audio returned")
			}
		})
	}
}

func fail(err error) func(context.Context, map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	return func(context.Context, map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
		return nil, err
	}
}

func TestSynthesizeCancelledBetweenSteps(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Synthesize(ctx, "Hello.", "en", testStyle(t), Params{TotalSteps: 3, Speed: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	if !errors.Is(err, ErrInferenceFailure) {
		t.Fatalf("error = %v, want ErrInferenceFailure", err)
	}

	if len(fakes.Estimator.Calls()) != 0 {
		t.Fatal("estimator ran after cancellation")
	}
}

func TestSynthesizeSeedIsDeterministic(t *testing.T) {
	run := func() []float32 {
		fakes := testutil.NewFakeGraphs(1.0)
		p := NewPipeline(fakes.Engine(), asciiIndexer(), fixtureModel(), WithSeed(7))

		res, err := p.Synthesize(context.Background(), "Hi.", "en", testStyle(t), Params{TotalSteps: 0, Speed: 1})
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}

		return res.Audio
	}

	a, b := run(), run()
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("lengths %d and %d", len(a), len(b))
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestBatch(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	fakes.Duration.Fn = func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
		out, err := onnx.NewTensor([]float32{1.0, 0.5}, []int64{2})
		return map[string]*onnx.Tensor{"duration": out}, err
	}

	p := newTestPipeline(t, fakes)

	results, err := p.Batch(context.Background(), []string{"Hello there.", "Hi."}, []string{"en", "fr"}, testStyle(t), 1, 1)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	if len(results[0].Audio) != 16 || results[0].Duration != 1.0 {
		t.Errorf("item 0 = %d samples, %v s; want 16, 1", len(results[0].Audio), results[0].Duration)
	}

	if len(results[1].Audio) != 8 || results[1].Duration != 0.5 {
		t.Errorf("item 1 = %d samples, %v s; want 8, 0.5", len(results[1].Audio), results[1].Duration)
	}

	assertAll(t, results[0].Audio, 1)
	assertAll(t, results[1].Audio, 1)

	in := fakes.Duration.Calls()[0]
	if in["style_dp"].Dim(0) != 2 {
		t.Fatalf("style_dp batch = %d, want broadcast to 2", in["style_dp"].Dim(0))
	}

	mask := fakes.Estimator.Calls()[0]["latent_mask"]
	m, _ := onnx.ExtractFloat32(mask)
	want := []float32{1, 1, 1, 1, 1, 1, 0, 0}
	for i := range want {
		if m[i] != want[i] {
			t.Fatalf("latent_mask = %v, want %v", m, want)
		}
	}
}

func TestBatchErrors(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		langs []string
		speed float64
		want  error
	}{
		{"empty batch", nil, nil, 1, ErrInvalidParameter},
		{"length mismatch", []string{"a", "b"}, []string{"en"}, 1, ErrInvalidParameter},
		{"bad speed", []string{"a"}, []string{"en"}, 0, ErrInvalidParameter},
		{"bad language", []string{"a", "b"}, []string{"en", "xx"}, 1, ErrInvalidLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakes := testutil.NewFakeGraphs(1.0)
			p := newTestPipeline(t, fakes)

			_, err := p.Batch(context.Background(), tt.texts, tt.langs, testStyle(t), 1, tt.speed)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}

			if len(fakes.Duration.Calls()) != 0 {
				t.Fatal("duration predictor ran")
			}
		})
	}
}

func TestBatchStyleMismatch(t *testing.T) {
	srcs := []asset.Source{
		asset.Bytes("a.json", testutil.StyleJSON(0.1)),
		asset.Bytes("b.json", testutil.StyleJSON(0.2)),
		asset.Bytes("c.json", testutil.StyleJSON(0.3)),
	}

	stacked, err := voice.LoadStyles(srcs)
	if err != nil {
		t.Fatalf("LoadStyles: %v", err)
	}

	fakes := testutil.NewFakeGraphs(1.0)
	p := newTestPipeline(t, fakes)

	_, err = p.Batch(context.Background(), []string{"a", "b"}, []string{"en", "en"}, stacked, 1, 1)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("error = %v, want ErrInvalidParameter", err)
	}

	if len(fakes.Duration.Calls()) != 0 {
		t.Fatal("duration predictor ran")
	}
}
