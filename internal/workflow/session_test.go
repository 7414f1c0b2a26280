package workflow

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"promptpix/internal/domain"
	"promptpix/internal/history"
)

// fakeService lets each test script the four generative operations.
type fakeService struct {
	mu sync.Mutex

	generatePrompt func(ctx context.Context, imageBase64, mimeType, style string) (string, error)
	generateImage  func(ctx context.Context, prompt string) (string, error)
	ratePrompt     func(ctx context.Context, prompt string) (*domain.PromptRating, error)
	refinePrompt   func(ctx context.Context, prompt string, level domain.RefineLevel) (string, error)

	ratedPrompts []string
}

func (f *fakeService) GeneratePrompt(ctx context.Context, imageBase64, mimeType, style string) (string, error) {
	if f.generatePrompt != nil {
		return f.generatePrompt(ctx, imageBase64, mimeType, style)
	}
	return "a generated prompt, " + style + " style", nil
}

func (f *fakeService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if f.generateImage != nil {
		return f.generateImage(ctx, prompt)
	}
	return "data:image/png;base64,Zm9v", nil
}

func (f *fakeService) RatePrompt(ctx context.Context, prompt string) (*domain.PromptRating, error) {
	f.mu.Lock()
	f.ratedPrompts = append(f.ratedPrompts, prompt)
	f.mu.Unlock()
	if f.ratePrompt != nil {
		return f.ratePrompt(ctx, prompt)
	}
	return &domain.PromptRating{Score: 8.5, Feedback: "solid"}, nil
}

func (f *fakeService) RefinePrompt(ctx context.Context, prompt string, level domain.RefineLevel) (string, error) {
	if f.refinePrompt != nil {
		return f.refinePrompt(ctx, prompt, level)
	}
	return "refined: " + prompt, nil
}

func (f *fakeService) rated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ratedPrompts))
	copy(out, f.ratedPrompts)
	return out
}

func newTestSession(t *testing.T, svc *fakeService) (*Session, *history.Store) {
	t.Helper()
	store := history.NewStore(history.NewMemoryBackend(), nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	s, err := NewSession(Options{
		Service:        svc,
		History:        store,
		RatingDebounce: 5 * time.Millisecond,
		Rand:           rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}
	t.Cleanup(s.Close)
	return s, store
}

// waitFor polls until cond observes what the test expects. Async completions
// hold no test-visible synchronization, so polling is the join point.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}

func testImage() domain.SourceImage {
	return domain.SourceImage{
		Base64:   "Zm9v",
		MimeType: "image/png",
		DataURL:  "data:image/png;base64,Zm9v",
	}
}

func TestSessionInitialState(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	st := s.State()
	if st.Mode != domain.ModeImageToPrompt {
		t.Fatalf("Mode = %q, want %q", st.Mode, domain.ModeImageToPrompt)
	}
	if st.Step != domain.StepInput {
		t.Fatalf("Step = %q, want %q", st.Step, domain.StepInput)
	}
	if st.Style != domain.StyleNone {
		t.Fatalf("Style = %q, want %q", st.Style, domain.StyleNone)
	}
}

func TestSwitchModeResetsTransientStateButKeepsStyle(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.SwitchMode(domain.ModeTextToImage)

	st := s.State()
	if st.Mode != domain.ModeTextToImage {
		t.Fatalf("Mode = %q, want %q", st.Mode, domain.ModeTextToImage)
	}
	if st.Step != domain.StepInput {
		t.Fatalf("Step = %q, want %q", st.Step, domain.StepInput)
	}
	if st.SourceImage != nil {
		t.Fatalf("SourceImage survived the mode switch")
	}
	if st.Style != "Anime" {
		t.Fatalf("Style = %q, want it to survive the reset", st.Style)
	}
}

func TestSwitchModeSameModeIsNoOp(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SwitchMode(domain.ModeImageToPrompt)
	if st := s.State(); st.SourceImage == nil {
		t.Fatalf("re-selecting the active mode destroyed in-progress work")
	}
}

func TestSubmitTextRequiresTextToImageMode(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	if err := s.SubmitText("a castle"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("SubmitText in image mode = %v, want ErrInvalidInput", err)
	}
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("SubmitText with blank text = %v, want ErrInvalidInput", err)
	}
	if err := s.SubmitText("a castle"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	if st := s.State(); st.Step != domain.StepStyle || st.TextInput != "a castle" {
		t.Fatalf("state after submit = step %q text %q", st.Step, st.TextInput)
	}
}

func TestUploadImageRequiresImageMode(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.UploadImage(testImage()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("UploadImage in text mode = %v, want ErrInvalidInput", err)
	}
}

func TestConfirmStyleAdvancesOptimisticallyAndLoadsPrompt(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		generatePrompt: func(ctx context.Context, _, _, style string) (string, error) {
			<-release
			return "prompt in " + style, nil
		},
	}
	s, _ := newTestSession(t, svc)
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Cinematic")
	s.ConfirmStyle(context.Background())

	// Review is entered before the service call settles.
	st := s.State()
	if st.Step != domain.StepReview {
		t.Fatalf("Step = %q, want %q before prompt settles", st.Step, domain.StepReview)
	}
	if !st.IsLoadingPrompt {
		t.Fatalf("IsLoadingPrompt = false, want true while the call is in flight")
	}

	close(release)
	waitFor(t, func() bool { return !s.State().IsLoadingPrompt })
	st = s.State()
	if st.Prompt != "prompt in Cinematic" {
		t.Fatalf("Prompt = %q", st.Prompt)
	}
	if st.OriginalPrompt != st.Prompt {
		t.Fatalf("OriginalPrompt = %q, want the generated prompt", st.OriginalPrompt)
	}
}

func TestConfirmStyleResolvesSentinelOnce(t *testing.T) {
	var styles []string
	var mu sync.Mutex
	svc := &fakeService{
		generatePrompt: func(ctx context.Context, _, _, style string) (string, error) {
			mu.Lock()
			styles = append(styles, style)
			mu.Unlock()
			return "p", nil
		},
	}
	s, _ := newTestSession(t, svc)
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return !s.State().IsLoadingPrompt })

	st := s.State()
	if st.Style == domain.StyleNone || st.Style == "" {
		t.Fatalf("Style = %q, want a concrete style after confirming the sentinel", st.Style)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(styles) != 1 || styles[0] != st.Style {
		t.Fatalf("service saw styles %v, state holds %q", styles, st.Style)
	}
}

func TestConfirmStyleFailureSurfacesPromptError(t *testing.T) {
	svc := &fakeService{
		generatePrompt: func(ctx context.Context, _, _, _ string) (string, error) {
			return "", errors.New("quota exhausted")
		},
	}
	s, _ := newTestSession(t, svc)
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().PromptError != "" })

	st := s.State()
	if st.Step != domain.StepReview {
		t.Fatalf("Step = %q, want review retained on failure", st.Step)
	}
	if !strings.Contains(st.PromptError, "quota exhausted") {
		t.Fatalf("PromptError = %q", st.PromptError)
	}
	if st.Prompt != "" {
		t.Fatalf("Prompt = %q, want empty on failure", st.Prompt)
	}
}

func TestConfirmStyleTextModeSkipsGeneration(t *testing.T) {
	svc := &fakeService{
		generatePrompt: func(ctx context.Context, _, _, _ string) (string, error) {
			return "", errors.New("must not be called")
		},
	}
	s, _ := newTestSession(t, svc)
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("a fox"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Gothic")
	s.ConfirmStyle(context.Background())

	st := s.State()
	if st.Step != domain.StepReview {
		t.Fatalf("Step = %q, want %q", st.Step, domain.StepReview)
	}
	if st.IsLoadingPrompt {
		t.Fatalf("text mode confirm must not load a prompt")
	}
	waitFor(t, func() bool { return s.State().Rating != nil })
}

func TestRefineReplacesActiveTextAndKeepsOriginal(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().Prompt != "" })
	original := s.State().Prompt

	s.Refine(context.Background(), domain.RefineDescriptive)
	waitFor(t, func() bool { return strings.HasPrefix(s.State().Prompt, "refined: ") })

	st := s.State()
	if st.OriginalPrompt != original {
		t.Fatalf("OriginalPrompt = %q, want untouched %q", st.OriginalPrompt, original)
	}

	// Refining again stacks on the already-refined text.
	s.Refine(context.Background(), domain.RefineConcise)
	waitFor(t, func() bool { return strings.HasPrefix(s.State().Prompt, "refined: refined: ") })

	s.ResetRefinement(context.Background())
	if got := s.State().Prompt; got != original {
		t.Fatalf("Prompt after reset = %q, want %q", got, original)
	}
}

func TestRefineWithNoActiveTextIsNoOp(t *testing.T) {
	called := false
	svc := &fakeService{
		refinePrompt: func(ctx context.Context, prompt string, level domain.RefineLevel) (string, error) {
			called = true
			return prompt, nil
		},
	}
	s, _ := newTestSession(t, svc)
	s.Refine(context.Background(), domain.RefineConcise)
	time.Sleep(20 * time.Millisecond)
	if called {
		t.Fatalf("Refine called the service with no active text")
	}
}

func TestResetRefinementIsNoOpInTextMode(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("a fox"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	s.Refine(context.Background(), domain.RefineDescriptive)
	waitFor(t, func() bool { return strings.HasPrefix(s.State().TextInput, "refined: ") })

	s.ResetRefinement(context.Background())
	if got := s.State().TextInput; !strings.HasPrefix(got, "refined: ") {
		t.Fatalf("TextInput after reset = %q, want the refined text kept", got)
	}
}

func TestGenerateImageAppendsHistoryPerGeneration(t *testing.T) {
	s, store := newTestSession(t, &fakeService{})
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().Prompt != "" })

	s.GenerateImage(context.Background())
	waitFor(t, func() bool { return len(s.State().GeneratedImages) == 1 })
	s.GenerateImage(context.Background())
	waitFor(t, func() bool { return len(s.State().GeneratedImages) == 2 })

	items := store.Singles()
	if len(items) != 2 {
		t.Fatalf("history items = %d, want one per generation", len(items))
	}
	if items[0].SourceImageURL != testImage().DataURL {
		t.Fatalf("SourceImageURL = %q", items[0].SourceImageURL)
	}
	if items[0].ImageURL == "" || items[0].Prompt == "" {
		t.Fatalf("history item incomplete: %+v", items[0])
	}
}

func TestGenerateImageTextModeAppendsStyleSuffixAndSkipsHistory(t *testing.T) {
	var got string
	var mu sync.Mutex
	svc := &fakeService{
		generateImage: func(ctx context.Context, prompt string) (string, error) {
			mu.Lock()
			got = prompt
			mu.Unlock()
			return "data:image/png;base64,aW1n", nil
		},
	}
	s, store := newTestSession(t, svc)
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("a red fox"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Cyberpunk")
	s.ConfirmStyle(context.Background())
	s.GenerateImage(context.Background())
	waitFor(t, func() bool { return len(s.State().GeneratedImages) == 1 })

	mu.Lock()
	effective := got
	mu.Unlock()
	if effective != "a red fox, Cyberpunk style" {
		t.Fatalf("effective prompt = %q", effective)
	}
	if len(store.Singles()) != 0 {
		t.Fatalf("text-to-image generation must not write single history")
	}
}

func TestGenerateImageEmptyPromptIsNoOp(t *testing.T) {
	called := false
	svc := &fakeService{
		generateImage: func(ctx context.Context, prompt string) (string, error) {
			called = true
			return "", nil
		},
	}
	s, _ := newTestSession(t, svc)
	s.GenerateImage(context.Background())
	time.Sleep(20 * time.Millisecond)
	if called {
		t.Fatalf("GenerateImage called the service with an empty prompt")
	}
}

func TestGenerateImageFailureKeepsExistingImages(t *testing.T) {
	fail := false
	svc := &fakeService{
		generateImage: func(ctx context.Context, prompt string) (string, error) {
			if fail {
				return "", errors.New("overloaded")
			}
			return "data:image/png;base64,aW1n", nil
		},
	}
	s, _ := newTestSession(t, svc)
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().Prompt != "" })

	s.GenerateImage(context.Background())
	waitFor(t, func() bool { return len(s.State().GeneratedImages) == 1 })

	fail = true
	s.GenerateImage(context.Background())
	waitFor(t, func() bool { return s.State().ImageError != "" })

	st := s.State()
	if len(st.GeneratedImages) != 1 {
		t.Fatalf("GeneratedImages = %d, want the earlier result kept", len(st.GeneratedImages))
	}
	if !strings.Contains(st.ImageError, "overloaded") {
		t.Fatalf("ImageError = %q", st.ImageError)
	}
}

func TestDebouncedRatingCollapsesRapidEdits(t *testing.T) {
	svc := &fakeService{}
	s, _ := newTestSession(t, svc)
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().Prompt != "" })
	waitFor(t, func() bool { return s.State().Rating != nil })
	baseline := len(svc.rated())

	ctx := context.Background()
	s.UpdatePrompt(ctx, "draft one")
	s.UpdatePrompt(ctx, "draft two")
	s.UpdatePrompt(ctx, "draft final")
	waitFor(t, func() bool { return len(svc.rated()) > baseline })
	waitFor(t, func() bool { return !s.State().IsRating })

	rated := svc.rated()[baseline:]
	if len(rated) != 1 {
		t.Fatalf("rapid edits fired %d rating calls, want 1: %v", len(rated), rated)
	}
	if rated[0] != "draft final" {
		t.Fatalf("rated %q, want the final draft", rated[0])
	}
}

func TestStaleRatingResponseIsDiscarded(t *testing.T) {
	type pending struct {
		prompt string
		reply  chan *domain.PromptRating
	}
	calls := make(chan pending, 4)
	svc := &fakeService{
		ratePrompt: func(ctx context.Context, prompt string) (*domain.PromptRating, error) {
			p := pending{prompt: prompt, reply: make(chan *domain.PromptRating)}
			calls <- p
			return <-p.reply, nil
		},
	}
	s, _ := newTestSession(t, svc)
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("first"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())

	first := <-calls
	if first.prompt != "first" {
		t.Fatalf("first rating call for %q", first.prompt)
	}

	// The text changes while the first rating is still in flight. Its
	// response must not be applied to the new text.
	s.UpdatePrompt(context.Background(), "second")
	second := <-calls
	first.reply <- &domain.PromptRating{Score: 1, Feedback: "stale"}
	second.reply <- &domain.PromptRating{Score: 9, Feedback: "fresh"}

	waitFor(t, func() bool {
		st := s.State()
		return st.Rating != nil && st.Rating.Feedback == "fresh"
	})
	if st := s.State(); st.Rating.Score != 9 {
		t.Fatalf("Rating.Score = %v, want the fresh response", st.Rating.Score)
	}
}

func TestClearingPromptClearsRatingWithoutCall(t *testing.T) {
	svc := &fakeService{}
	s, _ := newTestSession(t, svc)
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("a fox"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().Rating != nil })
	baseline := len(svc.rated())

	s.UpdatePrompt(context.Background(), "   ")
	if st := s.State(); st.Rating != nil {
		t.Fatalf("Rating not cleared for empty text")
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(svc.rated()); got != baseline {
		t.Fatalf("empty text still fired %d rating calls", got-baseline)
	}
}

func TestClearingPromptMidRatingReleasesBusyFlag(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		ratePrompt: func(ctx context.Context, prompt string) (*domain.PromptRating, error) {
			<-release
			return &domain.PromptRating{Score: 7, Feedback: "late"}, nil
		},
	}
	s, _ := newTestSession(t, svc)
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("a fox"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return s.State().IsRating })

	// Emptying the prompt supersedes the in-flight rating, so it must also
	// release the busy flag; the discarded response cannot do it later.
	s.UpdatePrompt(context.Background(), "")
	if st := s.State(); st.IsRating {
		t.Fatalf("IsRating still set after the prompt was cleared")
	}

	close(release)
	time.Sleep(20 * time.Millisecond)
	st := s.State()
	if st.IsRating {
		t.Fatalf("IsRating re-acquired by a superseded rating response")
	}
	if st.Rating != nil {
		t.Fatalf("Rating = %+v, want nil for an empty prompt", st.Rating)
	}
}

func TestConfirmStyleWithoutImageLeavesSentinelUnresolved(t *testing.T) {
	svc := &fakeService{}
	s, _ := newTestSession(t, svc)
	// The public operations never leave an image-to-prompt session on the
	// style step without a source image; exercise the guard directly.
	s.mu.Lock()
	s.state.Mode = domain.ModeImageToPrompt
	s.state.Step = domain.StepStyle
	s.state.SourceImage = nil
	s.mu.Unlock()

	s.ConfirmStyle(context.Background())

	st := s.State()
	if st.Style != domain.StyleNone {
		t.Fatalf("Style = %q, want the sentinel untouched on the guarded return", st.Style)
	}
	if st.Step != domain.StepStyle {
		t.Fatalf("Step = %q, want to stay on style", st.Step)
	}
}

func TestRatingFailureDegradesToNoRating(t *testing.T) {
	svc := &fakeService{
		ratePrompt: func(ctx context.Context, prompt string) (*domain.PromptRating, error) {
			return nil, errors.New("schema violation")
		},
	}
	s, _ := newTestSession(t, svc)
	s.SwitchMode(domain.ModeTextToImage)
	if err := s.SubmitText("a fox"); err != nil {
		t.Fatalf("SubmitText returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())
	waitFor(t, func() bool { return len(svc.rated()) > 0 })
	waitFor(t, func() bool { return !s.State().IsRating })
	if st := s.State(); st.Rating != nil {
		t.Fatalf("Rating = %+v, want nil after a failed rating", st.Rating)
	}
}

func TestSelectHistoryItemRehydratesState(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	s.SwitchMode(domain.ModeTextToImage)

	item := domain.HistoryItem{
		ID:             "2024-05-01T10:00:00.000Z",
		Prompt:         "a stored prompt",
		ImageURL:       "data:image/png;base64,aW1n",
		SourceImageURL: "data:image/jpeg;base64,c3Jj",
		Rating:         &domain.PromptRating{Score: 7, Feedback: "good"},
	}
	if err := s.SelectHistoryItem(context.Background(), item); err != nil {
		t.Fatalf("SelectHistoryItem returned error: %v", err)
	}

	st := s.State()
	if st.Mode != domain.ModeImageToPrompt || st.Step != domain.StepReview {
		t.Fatalf("mode/step = %q/%q", st.Mode, st.Step)
	}
	if st.Prompt != item.Prompt || st.OriginalPrompt != item.Prompt {
		t.Fatalf("prompt = %q original = %q", st.Prompt, st.OriginalPrompt)
	}
	if len(st.GeneratedImages) != 1 || st.GeneratedImages[0] != item.ImageURL {
		t.Fatalf("GeneratedImages = %v", st.GeneratedImages)
	}
	if st.SourceImage == nil || st.SourceImage.MimeType != "image/jpeg" || st.SourceImage.Base64 != "c3Jj" {
		t.Fatalf("SourceImage = %+v", st.SourceImage)
	}
}

func TestSelectHistoryItemRejectsCorruptSourceImage(t *testing.T) {
	s, _ := newTestSession(t, &fakeService{})
	err := s.SelectHistoryItem(context.Background(), domain.HistoryItem{
		ID:             "x",
		Prompt:         "p",
		SourceImageURL: "not a data url",
	})
	if err == nil {
		t.Fatalf("SelectHistoryItem accepted a corrupt source image url")
	}
}

func TestResetInvalidatesInFlightPromptGeneration(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		generatePrompt: func(ctx context.Context, _, _, _ string) (string, error) {
			<-release
			return "late prompt", nil
		},
	}
	s, _ := newTestSession(t, svc)
	if err := s.UploadImage(testImage()); err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	s.SelectStyle("Anime")
	s.ConfirmStyle(context.Background())

	// The mode switch supersedes the in-flight generation.
	s.SwitchMode(domain.ModeTextToImage)
	close(release)
	time.Sleep(20 * time.Millisecond)

	st := s.State()
	if st.Prompt != "" {
		t.Fatalf("Prompt = %q, stale completion applied after reset", st.Prompt)
	}
	if st.IsLoadingPrompt {
		t.Fatalf("IsLoadingPrompt stuck after reset")
	}
}
