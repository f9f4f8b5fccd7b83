package tts

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/model"
	"github.com/example/go-supertonic-tts/internal/testutil"
	"github.com/example/go-supertonic-tts/internal/voice"
)

func fixtureBytes() model.ModelBytes {
	styles := make(map[string][]byte)
	for i, id := range voice.IDs() {
		styles[id] = testutil.StyleJSON(float32(i+1) / 10)
	}

	return model.ModelBytes{
		Config:  testutil.ModelConfigJSON(),
		Indexer: testutil.IndexerJSON(),
		Styles:  styles,
	}
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.TTS.Speed = 1
	cfg.TTS.TotalSteps = 2

	return cfg
}

func newTestService(t *testing.T, fakes *testutil.FakeGraphs) *Service {
	t.Helper()

	svc, err := NewServiceWithEngine(model.BytesBundle(fixtureBytes()), fakes.Engine(), testConfig(), WithNoise(zeroNoise))
	if err != nil {
		t.Fatalf("NewServiceWithEngine: %v", err)
	}

	t.Cleanup(svc.Close)

	return svc
}

func TestServiceSynthesizeDefaults(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	svc := newTestService(t, fakes)

	req := svc.NewRequest("Hello world.")
	if req.Voice != "M1" || req.Language != "en" || req.TotalSteps != 2 || req.SilenceSeconds != 0.3 {
		t.Fatalf("NewRequest = %+v", req)
	}

	res, err := svc.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(res.Audio) != 16 || res.SampleRate != testutil.FixtureSampleRate {
		t.Fatalf("result = %d samples at %d Hz", len(res.Audio), res.SampleRate)
	}

	dp := fakes.Duration.Calls()[0]["style_dp"]
	if dp.Dim(0) != 1 {
		t.Fatalf("style_dp batch = %d, want 1", dp.Dim(0))
	}
}

func TestServiceFillsEmptyFields(t *testing.T) {
	svc := newTestService(t, testutil.NewFakeGraphs(1.0))

	res, err := svc.Synthesize(context.Background(), Request{Text: "Hi.", Params: Params{TotalSteps: 1, Speed: 1}})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(res.Audio) == 0 {
		t.Fatal("no audio")
	}
}

func TestServiceSynthesizeChunk(t *testing.T) {
	svc := newTestService(t, testutil.NewFakeGraphs(1.0))

	req := ChunkRequest{Request: svc.NewRequest("Second sentence."), SentenceIndex: 3}
	req.SilenceSeconds = 5

	res, err := svc.SynthesizeChunk(context.Background(), req)
	if err != nil {
		t.Fatalf("SynthesizeChunk: %v", err)
	}

	if res.SentenceIndex != 3 {
		t.Fatalf("SentenceIndex = %d, want 3", res.SentenceIndex)
	}

	if len(res.Audio) != 16 || res.Duration != 1.0 {
		t.Fatalf("chunk = %d samples, %v s; want 16, 1", len(res.Audio), res.Duration)
	}
}

func TestServiceSynthesizeDoneContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancelExpired()

	tests := []struct {
		name string
		ctx  context.Context
		want error
	}{
		{name: "cancelled", ctx: cancelled, want: context.Canceled},
		{name: "deadline passed", ctx: expired, want: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakes := testutil.NewFakeGraphs(1.0)
			svc := newTestService(t, fakes)

			_, err := svc.Synthesize(tt.ctx, svc.NewRequest("Hello world."))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Synthesize error = %v, want %v", err, tt.want)
			}

			if n := len(fakes.Duration.Calls()); n != 0 {
				t.Fatalf("duration_predictor ran %d times, want 0", n)
			}
		})
	}
}

func TestServiceSynthesizeWaitsThenHonorsContext(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	svc := newTestService(t, fakes)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	svc.mu.Lock()

	go func() {
		_, err := svc.Synthesize(ctx, svc.NewRequest("Hello world."))
		done <- err
	}()

	cancel()
	svc.mu.Unlock()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Synthesize error = %v, want context.Canceled", err)
	}

	if n := len(fakes.Duration.Calls()); n != 0 {
		t.Fatalf("duration_predictor ran %d times, want 0", n)
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		req  func(*Service) Request
		want error
	}{
		{
			name: "unknown voice",
			req:  func(s *Service) Request { r := s.NewRequest("Hi."); r.Voice = "Z9"; return r },
			want: ErrInvalidParameter,
		},
		{
			name: "missing style path",
			req:  func(s *Service) Request { r := s.NewRequest("Hi."); r.Voice = "/nonexistent/style.json"; return r },
			want: ErrStyleLoad,
		},
		{
			name: "unknown language",
			req:  func(s *Service) Request { r := s.NewRequest("Hi."); r.Language = "de"; return r },
			want: ErrInvalidLanguage,
		},
		{
			name: "bad speed",
			req:  func(s *Service) Request { r := s.NewRequest("Hi."); r.Speed = -1; return r },
			want: ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, testutil.NewFakeGraphs(1.0))

			_, err := svc.Synthesize(context.Background(), tt.req(svc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServiceMalformedStyle(t *testing.T) {
	b := fixtureBytes()
	b.Styles["M1"] = []byte("{")

	svc, err := NewServiceWithEngine(model.BytesBundle(b), testutil.NewFakeGraphs(1.0).Engine(), testConfig())
	if err != nil {
		t.Fatalf("NewServiceWithEngine: %v", err)
	}

	_, err = svc.Synthesize(context.Background(), svc.NewRequest("Hi."))
	if !errors.Is(err, ErrStyleLoad) {
		t.Fatalf("error = %v, want ErrStyleLoad", err)
	}
}

func TestNewServiceWithEngineLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ModelBytes)
		want   error
	}{
		{"bad config json", func(m *model.ModelBytes) { m.Config = []byte("{") }, ErrConfigLoad},
		{"zero sample rate", func(m *model.ModelBytes) {
			m.Config = []byte(`{"ae":{"sample_rate":0,"base_chunk_size":2},"ttl":{"chunk_compress_factor":2,"latent_dim":1}}`)
		}, ErrConfigLoad},
		{"bad indexer", func(m *model.ModelBytes) { m.Indexer = []byte(`{"a":1}`) }, ErrIndexLoad},
		{"empty indexer", func(m *model.ModelBytes) { m.Indexer = []byte(`[]`) }, ErrIndexLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fixtureBytes()
			tt.mutate(&b)

			_, err := NewServiceWithEngine(model.BytesBundle(b), testutil.NewFakeGraphs(1.0).Engine(), testConfig())
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := NewServiceWithEngine(model.BytesBundle(fixtureBytes()), nil, testConfig()); err == nil {
		t.Fatal("nil engine accepted")
	}
}

func TestServiceCatalog(t *testing.T) {
	svc := newTestService(t, testutil.NewFakeGraphs(1.0))

	if got := len(svc.Voices()); got != 10 {
		t.Fatalf("Voices() = %d, want 10", got)
	}

	if svc.Voices()[0].Display() != "M1 - Male Voice 1" {
		t.Fatalf("first voice = %q", svc.Voices()[0].Display())
	}

	if got := len(svc.Languages()); got != 5 {
		t.Fatalf("Languages() = %d, want 5", got)
	}

	got := svc.SplitSentences("Dr. Smith arrived. He sat down!  ")
	want := []string{"Dr. Smith arrived.", "He sat down!"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitSentences = %q, want %q", got, want)
	}
}

func TestServiceStatus(t *testing.T) {
	svc := newTestService(t, testutil.NewFakeGraphs(1.0))

	if _, err := svc.Status(); err == nil {
		t.Fatal("Status without a model dir should fail")
	}

	dir := t.TempDir()
	testutil.WriteModelDir(t, dir)
	svc.modelDir = dir

	st, err := svc.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if !st.Downloaded || st.DownloadedCount != st.Total {
		t.Fatalf("Status = %+v, want complete", st)
	}
}

func TestServiceClose(t *testing.T) {
	fakes := testutil.NewFakeGraphs(1.0)
	svc := newTestService(t, fakes)

	svc.Close()
	svc.Close()

	if _, err := svc.Synthesize(context.Background(), svc.NewRequest("Hi.")); err == nil {
		t.Fatal("Synthesize after Close succeeded")
	}
}
