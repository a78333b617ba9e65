package editor

import "sync"

// ChangeEvent reports a change of the widget's value. BaseRevision is the
// revision the widget held before the change: a keystroke on top of push R
// carries R, and the echo of push R itself carries the revision before R.
type ChangeEvent struct {
	Value        string
	BaseRevision uint64
}

// Widget is the embedded text-editing surface
type Widget interface {
	Value() string
	// SetValue replaces the document and tags it with revision
	SetValue(value string, revision uint64)
	SetLanguage(tag string)
	// OnChange subscribes to value changes; the returned func unsubscribes
	OnChange(fn func(ChangeEvent)) (cancel func())
	Dispose()
}

// Factory creates a widget holding value in language
type Factory func(value, language string) Widget

// MemoryWidget is a headless Widget. Like browser editors it reports its
// own SetValue calls as change events, synchronously.
type MemoryWidget struct {
	mu        sync.Mutex
	value     string
	language  string
	revision  uint64
	pushes    int
	disposed  bool
	nextID    int
	listeners map[int]func(ChangeEvent)
}

// NewMemoryWidget creates a headless widget
func NewMemoryWidget(value, language string) *MemoryWidget {
	return &MemoryWidget{
		value:     value,
		language:  language,
		listeners: make(map[int]func(ChangeEvent)),
	}
}

// MemoryFactory is a Factory producing MemoryWidgets
func MemoryFactory(value, language string) Widget {
	return NewMemoryWidget(value, language)
}

func (w *MemoryWidget) Value() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

func (w *MemoryWidget) SetValue(value string, revision uint64) {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	base := w.revision
	w.value = value
	w.revision = revision
	w.pushes++
	w.mu.Unlock()

	w.emit(ChangeEvent{Value: value, BaseRevision: base})
}

func (w *MemoryWidget) SetLanguage(tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.language = tag
}

func (w *MemoryWidget) OnChange(fn func(ChangeEvent)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.listeners[id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

func (w *MemoryWidget) Dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disposed = true
	w.listeners = make(map[int]func(ChangeEvent))
}

// Type replaces the value as a user edit on top of the current revision
func (w *MemoryWidget) Type(value string) {
	w.mu.Lock()
	base := w.revision
	w.mu.Unlock()
	w.Edit(value, base)
}

// Edit replaces the value as a user edit based on an explicit revision.
// A base older than the current revision models an event delivered late.
func (w *MemoryWidget) Edit(value string, base uint64) {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.value = value
	w.mu.Unlock()

	w.emit(ChangeEvent{Value: value, BaseRevision: base})
}

// Language returns the current language tag
func (w *MemoryWidget) Language() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.language
}

// Revision returns the revision of the last SetValue
func (w *MemoryWidget) Revision() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.revision
}

// Pushes returns how many times SetValue was called
func (w *MemoryWidget) Pushes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pushes
}

// Disposed reports whether Dispose was called
func (w *MemoryWidget) Disposed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disposed
}

func (w *MemoryWidget) emit(ev ChangeEvent) {
	w.mu.Lock()
	fns := make([]func(ChangeEvent), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
