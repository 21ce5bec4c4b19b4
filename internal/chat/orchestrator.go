// Package chat holds the conversation core: the observable state store, the
// playback position tracker and the orchestrator that reconciles the model
// runtime, the speech recognizer and the speech synthesizer into that state.
//
// The orchestrator runs a single event loop ([Orchestrator.Run]). Every state
// write happens on that loop: public operations are posted to it and wait
// until applied, and background work (catalog fetches, downloads, loads,
// generation) hands each result back to the loop before it becomes
// visible. Items of one download or generation stream are applied in the
// order they were produced.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/cogniscribe/internal/observe"
	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
	"github.com/MrWong99/cogniscribe/pkg/provider/speech"
	"github.com/MrWong99/cogniscribe/pkg/textpos"
)

const defaultLoadTimeout = 2 * time.Minute

// Orchestrator mediates between the runtime, the recognizer, the synthesizer
// and the [Store].
//
// All exported methods are safe for concurrent use. They block until the
// operation has been applied on the event loop, so [Orchestrator.Run] must be
// running; after the loop stopped they return [ErrClosed].
type Orchestrator struct {
	store    *Store
	rt       runtime.Runtime
	rec      speech.Recognizer
	syn      speech.Synthesizer
	tracker  *Tracker
	personas *PersonaBook
	metrics  *observe.Metrics
	log      *slog.Logger

	loadTimeout time.Duration

	cmds      chan func()
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup

	// Owned by the event loop.
	ctx         context.Context
	persona     Persona
	generating  bool
	downloading bool
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithPersonas sets the persona book used by Initialize. Defaults to the
// built-in personas.
func WithPersonas(b *PersonaBook) Option {
	return func(o *Orchestrator) { o.personas = b }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLoadTimeout bounds each model load. The default is 2 minutes.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an Orchestrator. Call Run to start its event loop.
func New(store *Store, rt runtime.Runtime, rec speech.Recognizer, syn speech.Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		rt:          rt,
		rec:         rec,
		syn:         syn,
		tracker:     NewTracker(store),
		loadTimeout: defaultLoadTimeout,
		cmds:        make(chan func()),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
		persona:     DefaultPersona,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.personas == nil {
		o.personas = NewPersonaBook()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = o.log.With("component", "chat")
	return o
}

// Store returns the state store the orchestrator writes to.
func (o *Orchestrator) Store() *Store { return o.store }

// Run subscribes to the recognizer and synthesizer and runs the event loop
// until ctx is cancelled or Close is called. On return both speech
// capabilities are stopped, the subscriptions are released and background
// work has finished. Run may be called only once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("chat: orchestrator already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	o.ctx = ctx

	recEvents, unsubRec := o.rec.Subscribe()
	synEvents, unsubSyn := o.syn.Subscribe()
	defer func() {
		unsubRec()
		unsubSyn()
		_ = o.syn.Stop()
		_ = o.rec.Stop()
		cancel()
		o.wg.Wait()
		close(o.exited)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case fn := <-o.cmds:
			fn()
		case e, ok := <-recEvents:
			if !ok {
				recEvents = nil
				continue
			}
			o.onRecognizer(e)
		case e, ok := <-synEvents:
			if !ok {
				synEvents = nil
				continue
			}
			o.onSynthesizer(e)
		}
	}
}

// Close stops the event loop and waits for Run to return. Idempotent.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() { close(o.done) })
	if o.started.Load() {
		<-o.exited
	}
	return nil
}

// do runs fn on the event loop and returns its result.
func (o *Orchestrator) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case o.cmds <- func() { res <- fn() }:
	case <-o.done:
		return ErrClosed
	case <-o.exited:
		return ErrClosed
	}
	return <-res
}

// post hands fn from background work to the event loop. It reports false
// once the loop is shutting down.
func (o *Orchestrator) post(ctx context.Context, fn func()) bool {
	select {
	case o.cmds <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// goAsync runs fn off the loop with the loop's context.
func (o *Orchestrator) goAsync(fn func(ctx context.Context)) {
	ctx := o.ctx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(ctx)
	}()
}

// report logs a failure of the given kind and shows status.
func (o *Orchestrator) report(kind, err error, status string) {
	o.reportTo(o.log, kind, err, status)
}

// reportTo is report with a span-scoped logger.
func (o *Orchestrator) reportTo(log *slog.Logger, kind, err error, status string) {
	log.Warn(status, "err", fmt.Errorf("%w: %w", kind, err))
	o.store.SetStatus(status)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ─── Session ────────────────────────────────────────────────────────────────

// Initialize starts a conversation for ageGroup: the persona's greeting
// becomes the first message, and the catalog is fetched. The first
// downloaded language model is loaded automatically. In speech mode the
// greeting is spoken. While an answer is still streaming it fails with
// [ErrGenerationInFlight] and the transcript is left unchanged.
func (o *Orchestrator) Initialize(ageGroup string) error {
	return o.do(func() error {
		if o.generating {
			o.store.SetStatus("Still answering, please wait")
			return ErrGenerationInFlight
		}
		o.stopSpeaking()
		o.persona = o.personas.Lookup(ageGroup)
		o.store.Reset(o.persona.Name, o.persona.Greeting)
		o.store.SetStatus("Loading models...")
		o.log.Info("session initialised", "age_group", ageGroup, "persona", o.persona.Name)

		snap := o.store.Snapshot()
		if snap.SpeechMode && len(snap.Messages) > 0 {
			_ = o.play(snap.Messages[0].ID, 0)
		}

		o.fetchCatalog(func(models []runtime.ModelDescriptor) {
			for _, m := range models {
				if m.IsDownloaded && m.Category.IsLanguage() {
					_ = o.loadModel(m.ID)
					return
				}
			}
			o.store.SetStatus("Please download a model from the Models menu")
		})
		return nil
	})
}

// ─── Models ─────────────────────────────────────────────────────────────────

// RefreshModels fetches the catalog again.
func (o *Orchestrator) RefreshModels() error {
	return o.do(func() error {
		o.store.SetStatus("Refreshing models...")
		o.fetchCatalog(func(models []runtime.ModelDescriptor) {
			if o.store.Snapshot().ActiveModelID == "" {
				o.store.SetStatus("Ready - Please download and load a model")
				return
			}
			o.store.SetStatus(fmt.Sprintf("Ready - %d models available", len(models)))
		})
		return nil
	})
}

// fetchCatalog lists models in the background, stores them and then calls
// then on the loop.
func (o *Orchestrator) fetchCatalog(then func([]runtime.ModelDescriptor)) {
	o.goAsync(func(ctx context.Context) {
		ctx, span := observe.StartSpan(ctx, "chat.catalog")
		log := observe.WithTrace(ctx, o.log)
		models, err := o.rt.ListModels(ctx)
		o.metrics.RecordRuntimeRequest(ctx, "list", outcome(err))
		endSpan(span, err)

		o.post(ctx, func() {
			if err != nil {
				o.reportTo(log, ErrCatalogLoad, err, "Error loading models: "+err.Error())
				return
			}
			log.Debug("catalog fetched", "models", len(models))
			o.store.SetCatalog(models)
			if then != nil {
				then(models)
			}
		})
	})
}

// DownloadModel starts downloading a model. Progress is published to the
// store; when the download completes the catalog is refreshed and the model
// is loaded. Only one download runs at a time.
func (o *Orchestrator) DownloadModel(id string) error {
	return o.do(func() error {
		if o.downloading {
			o.store.SetStatus("A download is already in progress")
			return ErrDownloadInFlight
		}
		o.downloading = true
		zero := 0.0
		o.store.SetDownloadProgress(&zero)
		o.store.SetStatus("Downloading model...")
		o.goAsync(func(ctx context.Context) { o.download(ctx, id) })
		return nil
	})
}

func (o *Orchestrator) download(ctx context.Context, id string) {
	ctx, span := observe.StartSpan(ctx, "chat.download",
		trace.WithAttributes(attribute.String("model_id", id)))
	log := observe.WithTrace(ctx, o.log).With("model_id", id)
	log.Debug("download started")
	start := time.Now()

	progress, err := o.rt.DownloadModel(ctx, id)
	if err == nil {
		for p := range progress {
			if p.Err != nil {
				err = p.Err
				continue
			}
			f := runtime.ClampFraction(p.Fraction)
			if !o.post(ctx, func() {
				o.store.SetDownloadProgress(&f)
				o.store.SetStatus(fmt.Sprintf("Downloading: %d%%", int(f*100)))
			}) {
				endSpan(span, ctx.Err())
				return
			}
		}
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	o.metrics.DownloadDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", outcome(err))))
	o.metrics.RecordRuntimeRequest(ctx, "download", outcome(err))
	endSpan(span, err)

	o.post(ctx, func() {
		o.downloading = false
		o.store.SetDownloadProgress(nil)
		if err != nil {
			o.reportTo(log, ErrDownload, err, "Download failed: "+err.Error())
			return
		}
		log.Info("model downloaded", "elapsed", time.Since(start))
		o.store.SetStatus("Download complete! Loading model...")
		o.fetchCatalog(func([]runtime.ModelDescriptor) { _ = o.loadModel(id) })
	})
}

// LoadModel resolves id against the last fetched catalog and loads it in the
// background. Unknown and not yet downloaded models fail immediately with
// [ErrModelNotFound] and [ErrModelNotDownloaded]. Models that cannot chat
// are skipped.
func (o *Orchestrator) LoadModel(id string) error {
	return o.do(func() error { return o.loadModel(id) })
}

func (o *Orchestrator) loadModel(id string) error {
	o.store.SetStatus(fmt.Sprintf("Loading model %s...", id))

	m, ok := runtime.Find(o.store.Snapshot().Catalog, id)
	if !ok {
		o.store.SetStatus("Error: Model not found.")
		return ErrModelNotFound
	}
	if !m.IsDownloaded {
		o.store.SetStatus("Error: Model not downloaded yet.")
		return ErrModelNotDownloaded
	}
	if !m.Category.IsLanguage() {
		o.store.SetStatus(fmt.Sprintf("Skipped %s model", m.Category))
		return nil
	}
	name := m.Name
	if name == "" {
		name = m.ID
	}

	o.goAsync(func(ctx context.Context) {
		ctx, span := observe.StartSpan(ctx, "chat.load",
			trace.WithAttributes(attribute.String("model_id", id)))
		log := observe.WithTrace(ctx, o.log).With("model_id", id)
		start := time.Now()

		lctx, cancel := context.WithTimeout(ctx, o.loadTimeout)
		err := o.rt.LoadModel(lctx, id)
		cancel()

		o.metrics.LoadDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("status", outcome(err))))
		o.metrics.RecordRuntimeRequest(ctx, "load", outcome(err))
		endSpan(span, err)

		o.post(ctx, func() {
			if err != nil {
				o.reportTo(log, ErrLoad, err, "Error loading model: "+err.Error())
				return
			}
			o.store.SetActiveModel(id)
			o.store.SetStatus("Model Loaded: " + name)
			log.Info("model loaded", "elapsed", time.Since(start))
		})
	})
	return nil
}

// ─── Generation ─────────────────────────────────────────────────────────────

// SendMessage appends text as a user message and streams the answer into
// the transcript. Blank text is ignored. It fails with [ErrNoModelLoaded]
// before a model is active and with [ErrGenerationInFlight] while the
// previous answer is still streaming; in both cases the transcript is left
// unchanged.
func (o *Orchestrator) SendMessage(text string) error {
	return o.do(func() error { return o.send(text) })
}

func (o *Orchestrator) send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	snap := o.store.Snapshot()
	if snap.ActiveModelID == "" {
		o.store.SetStatus("Please load a model first")
		return ErrNoModelLoaded
	}
	if o.generating {
		o.store.SetStatus("Still answering, please wait")
		return ErrGenerationInFlight
	}

	prompt := BuildPrompt(o.persona.SystemPrompt, text, snap.ReplyTarget)
	o.store.AppendUserMessage(text)
	o.store.SetLoading(true)
	o.generating = true
	o.goAsync(func(ctx context.Context) { o.generate(ctx, prompt) })
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) {
	ctx, span := observe.StartSpan(ctx, "chat.generate")
	log := observe.WithTrace(ctx, o.log)
	log.Debug("generation started", "prompt_chars", len([]rune(prompt)))
	start := time.Now()

	tokens, err := o.rt.GenerateStream(ctx, prompt)
	if err == nil {
		first := true
		for tok := range tokens {
			if tok.Err != nil {
				err = tok.Err
				continue
			}
			if tok.Text == "" {
				continue
			}
			if first {
				first = false
				o.metrics.FirstTokenLatency.Record(ctx, time.Since(start).Seconds())
			}
			t := tok.Text
			if !o.post(ctx, func() { o.store.AppendOrExtendAssistantToken(t) }) {
				endSpan(span, ctx.Err())
				return
			}
		}
	}

	o.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", outcome(err))))
	o.metrics.RecordRuntimeRequest(ctx, "generate", outcome(err))
	endSpan(span, err)

	o.post(ctx, func() { o.finishGeneration(log, err) })
}

func (o *Orchestrator) finishGeneration(log *slog.Logger, err error) {
	o.generating = false
	defer o.store.SetLoading(false)
	m, ok := o.store.FinishAssistantMessage()

	if err != nil {
		o.store.AppendAssistantMessage("Error: " + err.Error())
		o.reportTo(log, ErrGeneration, err, "Generation failed: "+err.Error())
		return
	}
	if ok && o.store.Snapshot().SpeechMode && strings.TrimSpace(m.Text) != "" {
		_ = o.play(m.ID, 0)
	}
}

// ─── Recognition ────────────────────────────────────────────────────────────

// StartListening starts a recognition session. A final result is sent as a
// message automatically.
func (o *Orchestrator) StartListening() error {
	return o.do(func() error {
		if o.store.Snapshot().Listening {
			return nil
		}
		o.store.SetListening(true)
		o.store.SetStatus("Initializing speech recognition...")
		o.goAsync(func(ctx context.Context) {
			err := o.rec.Start(ctx)
			if err == nil {
				return
			}
			o.post(ctx, func() {
				o.store.SetListening(false)
				o.report(&RecognitionError{Code: speech.ErrorClient}, err, "Failed to start speech recognition")
			})
		})
		return nil
	})
}

// StopListening ends capture. Speech already heard may still arrive as a
// final result; the recognition preview stays visible.
func (o *Orchestrator) StopListening() error {
	return o.do(func() error {
		o.store.SetListening(false)
		if err := o.rec.Stop(); err != nil {
			o.log.Debug("stop recognizer", "err", err)
		}
		o.store.SetStatus("Stopped listening")
		return nil
	})
}

// ClearRecognitionPreview clears the live recognition text.
func (o *Orchestrator) ClearRecognitionPreview() error {
	return o.do(func() error {
		o.store.SetRecognitionPreview("")
		return nil
	})
}

func (o *Orchestrator) onRecognizer(e speech.RecognizerEvent) {
	switch e.Kind {
	case speech.RecognizerReady:
		o.store.SetStatus("Listening... Speak now")
	case speech.RecognizerSpeechBegin:
		o.store.SetStatus("Listening...")
	case speech.RecognizerSpeechEnd:
		o.store.SetStatus("Processing...")
	case speech.RecognizerPartial:
		o.store.SetRecognitionPreview(e.Text)
		o.store.SetStatus("Hearing: " + e.Text)
	case speech.RecognizerFinal:
		o.metrics.RecordRecognition(o.ctx, "final")
		o.store.SetListening(false)
		o.store.SetRecognitionPreview(e.Text)
		o.store.SetStatus("Recognized: " + e.Text)
		if err := o.send(e.Text); err != nil {
			o.log.Debug("recognized text not sent", "err", err)
		}
	case speech.RecognizerError:
		o.metrics.RecordRecognition(o.ctx, "error")
		o.store.SetListening(false)
		err := &RecognitionError{Code: e.Code}
		o.log.Warn("speech recognition failed", "err", err)
		o.store.SetStatus("Speech error: " + e.Code.String())
	}
}

// ─── Replies ────────────────────────────────────────────────────────────────

// ReplyTo makes the next message a reply to messageID.
func (o *Orchestrator) ReplyTo(messageID string) error {
	return o.do(func() error {
		m, ok := o.store.Snapshot().Message(messageID)
		if !ok {
			return ErrUnknownMessage
		}
		o.store.SetReplyTarget(&m)
		return nil
	})
}

// CancelReply clears the reply target.
func (o *Orchestrator) CancelReply() error {
	return o.do(func() error {
		o.store.SetReplyTarget(nil)
		return nil
	})
}

// ─── Playback ───────────────────────────────────────────────────────────────

// ToggleSpeechMode flips speech mode. Leaving speech mode stops playback.
func (o *Orchestrator) ToggleSpeechMode() error {
	return o.do(func() error {
		on := !o.store.Snapshot().SpeechMode
		o.store.SetSpeechMode(on)
		if !on {
			o.stopSpeaking()
		}
		return nil
	})
}

// Play speaks messageID starting at character offset start. Offsets outside
// the text start from the beginning. Any other message being spoken is
// stopped first.
func (o *Orchestrator) Play(messageID string, start int) error {
	return o.do(func() error { return o.play(messageID, start) })
}

// SpeakFrom speaks messageID from the start of the word enclosing offset.
func (o *Orchestrator) SpeakFrom(messageID string, offset int) error {
	return o.do(func() error {
		m, ok := o.store.Snapshot().Message(messageID)
		if !ok {
			return ErrUnknownMessage
		}
		return o.play(messageID, textpos.WordStart(m.Text, offset))
	})
}

// PlayFromText speaks messageID from where selected occurs in it. A
// selection that is not an exact substring is located fuzzily; if nothing
// matches, [ErrTextNotFound] is returned and nothing plays.
func (o *Orchestrator) PlayFromText(messageID, selected string) error {
	return o.do(func() error {
		m, ok := o.store.Snapshot().Message(messageID)
		if !ok {
			return ErrUnknownMessage
		}
		at, ok := LocateText(m.Text, selected)
		if !ok {
			return ErrTextNotFound
		}
		return o.play(messageID, at)
	})
}

// Pause stops messageID and keeps the last spoken position for Resume.
func (o *Orchestrator) Pause(messageID string) error {
	return o.do(func() error {
		if _, ok := o.store.Snapshot().Message(messageID); !ok {
			return ErrUnknownMessage
		}
		o.pause(messageID)
		return nil
	})
}

// Resume speaks messageID from its stored position.
func (o *Orchestrator) Resume(messageID string) error {
	return o.do(func() error { return o.resume(messageID) })
}

// Toggle pauses a playing message, resumes a paused one and otherwise
// plays it from the start.
func (o *Orchestrator) Toggle(messageID string) error {
	return o.do(func() error {
		ps := o.store.Snapshot().Playback[messageID]
		switch {
		case ps.Playing:
			o.pause(messageID)
			return nil
		case ps.Paused:
			return o.resume(messageID)
		default:
			return o.play(messageID, 0)
		}
	})
}

// StopSpeaking stops playback and rewinds the message. Safe to call when
// nothing plays.
func (o *Orchestrator) StopSpeaking() error {
	return o.do(func() error {
		o.stopSpeaking()
		return nil
	})
}

func (o *Orchestrator) play(messageID string, start int) error {
	m, ok := o.store.Snapshot().Message(messageID)
	if !ok {
		return ErrUnknownMessage
	}
	if speaking := o.tracker.Speaking(); speaking != "" && speaking != messageID {
		o.stopSpeaking()
	}
	if start < 0 || start >= textpos.Len(m.Text) {
		start = 0
	}
	text := textpos.From(m.Text, start)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	uid := o.tracker.Begin(messageID, start)
	if err := o.syn.Speak(o.ctx, text, uid); err != nil {
		o.tracker.Finish(uid)
		o.report(ErrSynthesis, err, "Speech error: "+err.Error())
		return fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	return nil
}

func (o *Orchestrator) pause(messageID string) {
	if o.tracker.Speaking() == messageID {
		if err := o.syn.Stop(); err != nil {
			o.log.Debug("stop synthesizer", "err", err)
		}
	}
	o.tracker.Pause(messageID)
}

func (o *Orchestrator) resume(messageID string) error {
	return o.play(messageID, o.store.Snapshot().Playback[messageID].Position)
}

func (o *Orchestrator) stopSpeaking() {
	if err := o.syn.Stop(); err != nil {
		o.log.Debug("stop synthesizer", "err", err)
	}
	o.tracker.Stop()
}

func (o *Orchestrator) onSynthesizer(e speech.SynthesizerEvent) {
	switch e.Kind {
	case speech.SynthesizerStarted:
		o.tracker.Started(e.UtteranceID)
	case speech.SynthesizerRange:
		o.tracker.Range(e.UtteranceID, e.Start)
	case speech.SynthesizerDone:
		if _, ok := o.tracker.Finish(e.UtteranceID); ok {
			o.metrics.RecordUtterance(o.ctx, "done")
		}
	case speech.SynthesizerError:
		if id, ok := o.tracker.Finish(e.UtteranceID); ok {
			o.metrics.RecordUtterance(o.ctx, "error")
			err := e.Err
			if err == nil {
				err = errors.New("unknown synthesizer failure")
			}
			o.log.Warn("utterance failed", "message_id", id, "err", fmt.Errorf("%w: %w", ErrSynthesis, err))
			o.store.SetStatus("Speech error: " + err.Error())
		}
	}
}
