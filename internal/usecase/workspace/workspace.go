// Package workspace ties one script's extractor output, parameter store,
// renderer controller, presets and run journal together behind the
// interface the console and the CLI use.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"scenetuner/internal/adapter/preset"
	"scenetuner/internal/adapter/runlog"
	"scenetuner/internal/domain"
	"scenetuner/internal/infra/config"
	"scenetuner/internal/usecase/eventbus"
	"scenetuner/internal/usecase/extract"
	"scenetuner/internal/usecase/paramstore"
	"scenetuner/internal/usecase/render"
)

// Journal persists renderer runs.
type Journal interface {
	Record(ctx context.Context, r domain.RunRecord) error
	List(ctx context.Context, limit int) ([]domain.RunRecord, error)
	Close() error
}

// Param is a parameter as shown to the user.
type Param struct {
	domain.ParameterSpec
	Current  domain.Value
	Category string
}

// Workspace is not safe for concurrent use. Renderer callbacks run on the
// goroutine that calls Poll.
type Workspace struct {
	script   *extract.Script
	problems []string

	bus     *eventbus.Bus
	store   *paramstore.Store
	ctrl    *render.Controller
	presets *preset.FileStore
	journal Journal

	defaults render.RunOptions
	logger   *slog.Logger
	now      func() time.Time

	runs   map[string]domain.RunRecord
	unsubs []func()
}

// Option configures Open.
type Option func(*options)

type options struct {
	journal     Journal
	presetOpts  []preset.Option
	now         func() time.Time
	skipJournal bool
}

// WithJournal records runs in j instead of the configured SQLite run log.
func WithJournal(j Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithoutJournal disables run journaling regardless of configuration.
func WithoutJournal() Option {
	return func(o *options) { o.skipJournal = true }
}

// WithPresetOptions passes options to the preset store.
func WithPresetOptions(opts ...preset.Option) Option {
	return func(o *options) { o.presetOpts = append(o.presetOpts, opts...) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open extracts the script at path and builds its workspace. Schema
// problems are logged and kept in Problems; they do not fail the open.
func Open(ctx context.Context, path string, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	script, err := extract.File(path)
	if err != nil {
		return nil, err
	}
	_, problems := extract.Validate(script.Specs)
	for _, p := range problems {
		logger.Warn("parameter schema problem", "script", path, "problem", p)
	}

	defaults, err := runDefaults(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(logger)
	w := &Workspace{
		script:   script,
		problems: problems,
		bus:      bus,
		store: paramstore.New(path, script.Specs,
			paramstore.WithBus(bus), paramstore.WithLogger(logger), paramstore.WithClock(o.now)),
		ctrl: render.NewController(path, RenderConfig(cfg), logger,
			render.WithBus(bus), render.WithClock(o.now)),
		presets:  preset.NewFileStore(path, append([]preset.Option{preset.WithClock(o.now)}, o.presetOpts...)...),
		defaults: defaults,
		logger:   logger,
		now:      o.now,
		runs:     make(map[string]domain.RunRecord),
	}

	switch {
	case o.skipJournal:
	case o.journal != nil:
		w.journal = o.journal
	case cfg.RunLog.Enabled:
		j, err := runlog.NewSQLiteStore(cfg.RunLog.Path)
		if err != nil {
			logger.Warn("run log unavailable", "path", cfg.RunLog.Path, "error", err)
		} else {
			w.journal = j
		}
	}
	if w.journal != nil {
		w.unsubs = append(w.unsubs, w.ctrl.OnStatus(w.recordStatus))
	}

	logger.Debug("workspace opened", "script", path, "params", len(script.Specs),
		"categories", len(script.Categories), "scenes", script.Scenes)
	return w, nil
}

// RenderConfig maps the configuration file onto controller settings.
func RenderConfig(cfg *config.Config) render.Config {
	flags := make(map[domain.RenderMode][]string, len(cfg.Renderer.ModeFlags))
	for mode, f := range cfg.Renderer.ModeFlags {
		flags[domain.RenderMode(mode)] = f
	}
	c := cfg.Controller
	return render.Config{
		Executable:        cfg.Renderer.Executable,
		ModeFlags:         flags,
		WorkDir:           cfg.Renderer.WorkDir,
		ReaderJoinTimeout: c.ReaderJoinTimeout,
		ExitWaitTimeout:   c.ExitWaitTimeout,
		DrainTimeout:      c.DrainTimeout,
		KillWaitTimeout:   c.KillWaitTimeout,
		GroupSettle:       c.GroupSettle,
		PreviousKillWait:  c.PreviousKillWait,
		SelfHealGrace:     c.SelfHealGrace,
		QueueCapacity:     c.QueueCapacity,
	}
}

func runDefaults(cfg *config.Config) (render.RunOptions, error) {
	var opts render.RunOptions
	if cfg.Renderer.Quality != "" {
		q, err := domain.ParseQuality(cfg.Renderer.Quality)
		if err != nil {
			return opts, fmt.Errorf("renderer quality: %w", err)
		}
		opts.Quality = q
	}
	if cfg.Renderer.Mode != "" {
		m, err := domain.ParseRenderMode(cfg.Renderer.Mode)
		if err != nil {
			return opts, fmt.Errorf("renderer mode: %w", err)
		}
		opts.Mode = m
	}
	return opts, nil
}

// Path returns the script path.
func (w *Workspace) Path() string { return w.script.Path }

// Problems returns the schema problems found when the script was opened.
func (w *Workspace) Problems() []string { return w.problems }

// Scenes returns the scene classes declared by the script.
func (w *Workspace) Scenes() []string { return w.script.Scenes }

// Categories returns the parameter grouping.
func (w *Workspace) Categories() domain.CategoryMap { return w.script.Categories }

// Params returns every parameter in declaration order with its current value.
func (w *Workspace) Params() []Param {
	names := w.store.Names()
	out := make([]Param, 0, len(names))
	for _, name := range names {
		spec, _ := w.store.Spec(name)
		cur, _ := w.store.Get(name)
		cat, _ := w.script.Categories.CategoryOf(name)
		out = append(out, Param{ParameterSpec: spec, Current: cur, Category: cat})
	}
	return out
}

// Param returns one parameter.
func (w *Workspace) Param(name string) (Param, bool) {
	spec, ok := w.store.Spec(name)
	if !ok {
		return Param{}, false
	}
	cur, _ := w.store.Get(name)
	cat, _ := w.script.Categories.CategoryOf(name)
	return Param{ParameterSpec: spec, Current: cur, Category: cat}, true
}

// Store exposes the parameter store.
func (w *Workspace) Store() *paramstore.Store { return w.store }

// Controller exposes the renderer controller.
func (w *Workspace) Controller() *render.Controller { return w.ctrl }

func (w *Workspace) Set(name string, v domain.Value) (bool, error) { return w.store.Set(name, v) }

// SetText parses text according to the parameter's declared type and sets it.
func (w *Workspace) SetText(name, text string) (bool, error) {
	spec, ok := w.store.Spec(name)
	if !ok {
		return false, domain.NewSubSystemError("paramstore", "Workspace.SetText", domain.ErrNotFound,
			fmt.Sprintf("parameter %q", name))
	}
	v, err := domain.ParseValue(text, spec.Type)
	if err != nil {
		return false, domain.NewSubSystemError("paramstore", "Workspace.SetText", domain.ErrTypeMismatch, err.Error())
	}
	return w.store.Set(name, v)
}

func (w *Workspace) SetBatch(updates []domain.Update) map[string]bool {
	return w.store.SetBatch(updates)
}

func (w *Workspace) Undo() bool { return w.store.Undo() }
func (w *Workspace) Redo() bool { return w.store.Redo() }
func (w *Workspace) Reset(name string) (bool, error) { return w.store.Reset(name) }
func (w *Workspace) ResetAll() bool { return w.store.ResetAll() }

// SavePreset stores the current values under name.
func (w *Workspace) SavePreset(name string) error {
	return w.presets.Save(name, w.store.All())
}

// LoadPreset applies a preset as one undoable batch. Names the script no
// longer declares are reported as rejected.
func (w *Workspace) LoadPreset(name string) (map[string]bool, error) {
	params, err := w.presets.Load(name)
	if err != nil {
		return nil, err
	}
	return w.applyValues(params), nil
}

func (w *Workspace) ListPresets() ([]string, error) { return w.presets.List() }
func (w *Workspace) DeletePreset(name string) error { return w.presets.Delete(name) }

// Export writes the current values to path.
func (w *Workspace) Export(path string) error {
	return w.presets.Export(path, w.store.All())
}

// Import applies the values in an exported file as one undoable batch.
func (w *Workspace) Import(path string) (map[string]bool, error) {
	params, err := w.presets.Import(path)
	if err != nil {
		return nil, err
	}
	return w.applyValues(params), nil
}

// applyValues orders the updates by declaration so the batch records
// changes deterministically; unknown names go last in sorted order.
func (w *Workspace) applyValues(params map[string]domain.Value) map[string]bool {
	updates := make([]domain.Update, 0, len(params))
	seen := make(map[string]bool, len(params))
	for _, name := range w.store.Names() {
		if v, ok := params[name]; ok {
			updates = append(updates, domain.Update{Name: name, Value: v})
			seen[name] = true
		}
	}
	var unknown []string
	for name := range params {
		if !seen[name] {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	for _, name := range unknown {
		updates = append(updates, domain.Update{Name: name, Value: params[name]})
	}
	return w.store.SetBatch(updates)
}

// Run starts the renderer. Empty options fall back to the configured quality
// and mode, and to the first scene in the script.
func (w *Workspace) Run(ctx context.Context, opts render.RunOptions) error {
	if opts.Quality == "" {
		opts.Quality = w.defaults.Quality
	}
	if opts.Mode == "" {
		opts.Mode = w.defaults.Mode
	}
	if opts.Scene == "" && len(w.script.Scenes) > 0 {
		opts.Scene = w.script.Scenes[0]
	}

	err := w.ctrl.Start(ctx, opts)
	if w.journal == nil {
		return err
	}
	switch {
	case err == nil:
		id := w.ctrl.SessionID()
		w.runs[id] = domain.RunRecord{
			ID: id, Script: w.ctrl.Script(), Scene: opts.Scene, Mode: opts.Mode, Quality: opts.Quality,
			Argv: w.ctrl.Argv(), Status: domain.RenderRunning, StartedAt: w.now(),
		}
		w.journalRecord(ctx, w.runs[id])
	case domain.IsSpawnError(err):
		at := w.now()
		w.journalRecord(ctx, domain.RunRecord{
			ID: ulid.Make().String(), Script: w.ctrl.Script(), Scene: opts.Scene, Mode: opts.Mode, Quality: opts.Quality,
			Status: domain.RenderError, StartedAt: at, EndedAt: &at,
		})
	}
	return err
}

// Stop asks a running renderer to stop.
func (w *Workspace) Stop() bool { return w.ctrl.Stop() }

// Poll delivers queued renderer events to the registered listeners.
func (w *Workspace) Poll() { w.ctrl.Poll() }

// Status returns the renderer state.
func (w *Workspace) Status() domain.RenderStatus { return w.ctrl.Status() }

// LatestVideo returns the newest rendered movie for the script, if any.
func (w *Workspace) LatestVideo() (string, bool) { return render.LatestVideo(w.ctrl.Script()) }

// History returns journaled runs, newest first.
func (w *Workspace) History(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if w.journal == nil {
		return nil, nil
	}
	return w.journal.List(ctx, limit)
}

// Listener registration. Each returns a func that removes the listener.

func (w *Workspace) OnChange(fn func(domain.ParamChange)) func() { return w.store.OnChange(fn) }

func (w *Workspace) OnFileModified(fn func(string)) func() { return w.store.OnFileModified(fn) }

func (w *Workspace) OnStatus(fn func(domain.StatusChange)) func() { return w.ctrl.OnStatus(fn) }

func (w *Workspace) OnOutput(fn func(string)) func() { return w.ctrl.OnOutput(fn) }

func (w *Workspace) OnError(fn func(string)) func() { return w.ctrl.OnError(fn) }

// Close stops a running renderer and releases the journal.
func (w *Workspace) Close() error {
	w.ctrl.Stop()
	for _, u := range w.unsubs {
		u()
	}
	w.unsubs = nil
	w.bus.Close()
	if w.journal != nil {
		return w.journal.Close()
	}
	return nil
}

func (w *Workspace) recordStatus(st domain.StatusChange) {
	run, ok := w.runs[st.SessionID]
	if !ok || !st.Status.Terminal() {
		return
	}
	delete(w.runs, st.SessionID)
	at := st.At
	run.Status = st.Status
	run.ExitCode = st.ExitCode
	run.EndedAt = &at
	w.journalRecord(context.Background(), run)
}

func (w *Workspace) journalRecord(ctx context.Context, r domain.RunRecord) {
	if err := w.journal.Record(ctx, r); err != nil {
		w.logger.Warn("run log write failed", "session_id", r.ID, "error", err)
	}
}
