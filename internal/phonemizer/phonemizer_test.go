package phonemizer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-g2pfold/internal/engine"
	"github.com/example/go-g2pfold/internal/folding"
	"github.com/example/go-g2pfold/internal/languages"
)

var toneDigits = map[rune]string{
	'1': "˥", '2': "˧˥", '3': "˧", '4': "˨˩", '5': "˩˧", '6': "˨",
}

// fakeEngine mimics epitran.trans_delimiter: the input is split into
// segments (one per rune, spaces included) and joined with the delimiter.
// Tone digits become Chao tone letters. Inputs containing "bad" fail.
type fakeEngine struct {
	calls  []string
	opts   []engine.TransOptions
	closed bool
}

func (f *fakeEngine) Transliterate(_ context.Context, text string, opts engine.TransOptions) (string, error) {
	f.calls = append(f.calls, text)
	f.opts = append(f.opts, opts)
	if strings.Contains(text, "bad") {
		return "", errors.New("IndexError: cannot segment")
	}
	delim := opts.Delimiter
	if delim == "" {
		delim = " "
	}
	segs := make([]string, 0, len(text))
	for _, r := range text {
		if t, ok := toneDigits[r]; ok {
			segs = append(segs, t)
			continue
		}
		segs = append(segs, string(r))
	}
	return strings.Join(segs, delim), nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestAdapter(t *testing.T, opts Options, extra ...Option) (*Adapter, *fakeEngine) {
	t.Helper()
	fe := &fakeEngine{}
	fns := append([]Option{WithEngine(fe), WithLogger(quietLogger())}, extra...)
	a, err := New(context.Background(), opts, fns...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, fe
}

func TestNew_UnsupportedLanguage(t *testing.T) {
	_, err := New(context.Background(), DefaultOptions("xx-Latn"), WithEngine(&fakeEngine{}), WithLogger(quietLogger()))
	if !errors.Is(err, languages.ErrUnsupportedLanguage) {
		t.Fatalf("err = %v; want ErrUnsupportedLanguage", err)
	}
}

func TestNew_MandarinWithoutCEDICT(t *testing.T) {
	env := languages.Env{CEDICTPath: filepath.Join(t.TempDir(), "cedict_ts.u8")}
	_, err := New(context.Background(), DefaultOptions("cmn-Hans"),
		WithEngine(&fakeEngine{}), WithEnv(env), WithLogger(quietLogger()))
	if !errors.Is(err, languages.ErrMissingResource) {
		t.Fatalf("err = %v; want ErrMissingResource", err)
	}
}

func TestNew_EnglishWithoutLexLookup(t *testing.T) {
	env := languages.Env{Probe: func(context.Context, string, ...string) error {
		return errors.New("exit status 1")
	}}
	_, err := New(context.Background(), DefaultOptions("eng-Latn"),
		WithEngine(&fakeEngine{}), WithEnv(env), WithLogger(quietLogger()))
	if !errors.Is(err, languages.ErrMissingDependency) {
		t.Fatalf("err = %v; want ErrMissingDependency", err)
	}
}

func TestNew_CustomRegistry(t *testing.T) {
	reg := languages.NewRegistry([]string{"tst-Latn"})
	a, _ := newTestAdapter(t, DefaultOptions("tst-Latn"), WithRegistry(reg))
	if a.Language() != "tst-Latn" {
		t.Errorf("Language() = %q", a.Language())
	}
	if _, err := New(context.Background(), DefaultOptions("deu-Latn"), WithRegistry(reg), WithEngine(&fakeEngine{})); err == nil {
		t.Error("deu-Latn should be rejected by a registry that does not list it")
	}
}

func TestPhonemize_CleansLineBeforeEngine(t *testing.T) {
	a, fe := newTestAdapter(t, DefaultOptions("deu-Latn"))

	a.Phonemize(context.Background(), []string{"héllo,  world!!"})

	if len(fe.calls) != 1 {
		t.Fatalf("engine called %d times; want 1", len(fe.calls))
	}
	if fe.calls[0] != "héllo world " {
		t.Errorf("engine input = %q; want %q", fe.calls[0], "héllo world ")
	}
	got := fe.opts[0]
	if got.Delimiter != PhoneBoundary || got.NormPunc || got.Ligatures {
		t.Errorf("engine options = %+v", got)
	}
}

func TestPhonemize_WordBoundaries(t *testing.T) {
	opts := DefaultOptions("deu-Latn")
	opts.UseFolding = false

	a, _ := newTestAdapter(t, opts)
	got := a.Phonemize(context.Background(), []string{"ab c"})
	if want := "a b WORD_BOUNDARY c WORD_BOUNDARY"; got[0] != want {
		t.Errorf("kept boundaries = %q; want %q", got[0], want)
	}

	opts.KeepWordBoundaries = false
	a, _ = newTestAdapter(t, opts)
	got = a.Phonemize(context.Background(), []string{"ab c"})
	if want := "a b c"; got[0] != want {
		t.Errorf("dropped boundaries = %q; want %q", got[0], want)
	}
}

func TestRewriteBoundaries_CollapsesDoubleWordBoundary(t *testing.T) {
	a := &Adapter{keepWordBoundaries: true}

	// Two word gaps in a row, as produced by "a  b " before cleaning.
	in := "aPHONE_BOUNDARY PHONE_BOUNDARY PHONE_BOUNDARYbPHONE_BOUNDARY "
	got := a.rewriteBoundaries(in)
	if want := "a WORD_BOUNDARY b WORD_BOUNDARY"; got != want {
		t.Errorf("rewriteBoundaries = %q; want %q", got, want)
	}
	if strings.Contains(got, PhoneBoundary) {
		t.Errorf("phone boundary leaked into %q", got)
	}
}

func TestPhonemize_PreservesCountAndOrder(t *testing.T) {
	opts := DefaultOptions("deu-Latn")
	opts.UseFolding = false
	a, _ := newTestAdapter(t, opts)

	in := []string{"ab", "", "bad line", "   ", "c", "?!"}
	got := a.Phonemize(context.Background(), in)

	if len(got) != len(in) {
		t.Fatalf("len = %d; want %d", len(got), len(in))
	}
	want := []string{"a b WORD_BOUNDARY", "", "", "", "c WORD_BOUNDARY", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestPhonemize_FailedLineDoesNotAbortBatch(t *testing.T) {
	a, fe := newTestAdapter(t, DefaultOptions("deu-Latn"))

	got := a.Phonemize(context.Background(), []string{"ok", "bad", "ok"})
	if got[1] != "" {
		t.Errorf("failed line = %q; want empty", got[1])
	}
	if got[0] == "" || got[2] == "" {
		t.Errorf("sibling lines lost: %q", got)
	}
	if len(fe.calls) != 3 {
		t.Errorf("engine called %d times; want 3", len(fe.calls))
	}
}

func TestPhonemize_EmptyInput(t *testing.T) {
	a, _ := newTestAdapter(t, DefaultOptions("deu-Latn"))
	if got := a.Phonemize(context.Background(), nil); len(got) != 0 {
		t.Errorf("Phonemize(nil) = %q", got)
	}
}

func TestPhonemize_CantoneseSplitsSyllables(t *testing.T) {
	opts := DefaultOptions("yue-Latn")
	opts.UseFolding = false
	a, fe := newTestAdapter(t, opts)

	got := a.Phonemize(context.Background(), []string{"nei5hou2 a3"})

	wantCalls := []string{"nei5", "hou2", "a3"}
	if len(fe.calls) != len(wantCalls) {
		t.Fatalf("engine calls = %q; want %q", fe.calls, wantCalls)
	}
	for i, c := range wantCalls {
		if fe.calls[i] != c {
			t.Errorf("call %d = %q; want %q", i, fe.calls[i], c)
		}
		if fe.opts[i].Delimiter != "" {
			t.Errorf("syllable call %d used delimiter %q", i, fe.opts[i].Delimiter)
		}
	}

	want := "n e i ˩˧ h o u ˧˥ WORD_BOUNDARY a ˧ WORD_BOUNDARY"
	if got[0] != want {
		t.Errorf("Phonemize = %q; want %q", got[0], want)
	}
}

func TestPhonemize_CantoneseWithoutBoundaries(t *testing.T) {
	opts := DefaultOptions("yue-Latn")
	opts.UseFolding = false
	opts.KeepWordBoundaries = false
	a, _ := newTestAdapter(t, opts)

	got := a.Phonemize(context.Background(), []string{"si1"})
	if want := "s i ˥ "; got[0] != want {
		t.Errorf("Phonemize = %q; want %q", got[0], want)
	}
}

func TestPhonemize_CantoneseSyllableFailureEmptiesLine(t *testing.T) {
	opts := DefaultOptions("yue-Latn")
	a, _ := newTestAdapter(t, opts)

	got := a.Phonemize(context.Background(), []string{"bad1", "si1"})
	if got[0] != "" {
		t.Errorf("line with failing syllable = %q; want empty", got[0])
	}
	if got[1] == "" {
		t.Error("sibling line should still be phonemized")
	}
}

func TestPhonemize_FoldingTables(t *testing.T) {
	tables := folding.Tables{
		All:       folding.Table{{From: "x", To: "ks"}},
		Languages: map[string]folding.Table{"deu-Latn": {{From: " a ", To: " ɑ "}}},
	}
	a, _ := newTestAdapter(t, DefaultOptions("deu-Latn"), WithFolding(tables))

	got := a.Phonemize(context.Background(), []string{"ax"})
	if want := "ɑ ks WORD_BOUNDARY"; got[0] != want {
		t.Errorf("Phonemize = %q; want %q", got[0], want)
	}
}

func TestPhonemize_FoldingIsNoOpWithoutTables(t *testing.T) {
	in := []string{"hello world", "", "bad", "xyz"}

	on := DefaultOptions("deu-Latn")
	aOn, _ := newTestAdapter(t, on, WithFolding(folding.Tables{}))

	off := on
	off.UseFolding = false
	aOff, _ := newTestAdapter(t, off)

	gotOn := aOn.Phonemize(context.Background(), in)
	gotOff := aOff.Phonemize(context.Background(), in)
	for i := range in {
		if gotOn[i] != gotOff[i] {
			t.Errorf("line %d: folding on %q vs off %q", i, gotOn[i], gotOff[i])
		}
	}
}

func TestPhonemize_FoldingKeysAreLiteral(t *testing.T) {
	tables := folding.Tables{All: folding.Table{{From: ".", To: "DOT"}}}
	a, _ := newTestAdapter(t, DefaultOptions("deu-Latn"), WithFolding(tables))

	got := a.Phonemize(context.Background(), []string{"ab"})
	if strings.Contains(got[0], "DOT") {
		t.Errorf("regex-looking key matched non-literal text: %q", got[0])
	}
}

func TestPhonemize_TonalLanguagesRepositionMarkers(t *testing.T) {
	opts := DefaultOptions("yue-Latn")
	a, _ := newTestAdapter(t, opts, WithFolding(folding.Tables{}))

	// The fake engine leaves the final consonant after the tone letter.
	got := a.Phonemize(context.Background(), []string{"sik1"})
	if want := "s i ˥ k WORD_BOUNDARY"; got[0] != want {
		t.Errorf("Phonemize = %q; want %q", got[0], want)
	}

	opts.UseFolding = false
	raw, _ := newTestAdapter(t, opts)
	if got := raw.Phonemize(context.Background(), []string{"sik1"}); got[0] != "s i k ˥ WORD_BOUNDARY" {
		t.Errorf("unfolded output = %q", got[0])
	}
}

func TestPhonemize_DefaultFoldingKeepsBoundaryMarkers(t *testing.T) {
	a, _ := newTestAdapter(t, DefaultOptions("deu-Latn"))
	got := a.Phonemize(context.Background(), []string{"gut"})
	if want := "ɡ u t WORD_BOUNDARY"; got[0] != want {
		t.Errorf("Phonemize = %q; want %q", got[0], want)
	}
}

// dyingEngine converts normally until it sees "crash", then stays closed.
type dyingEngine struct {
	fakeEngine
	dead bool
}

func (d *dyingEngine) Transliterate(ctx context.Context, text string, opts engine.TransOptions) (string, error) {
	if d.dead {
		return "", engine.ErrClosed
	}
	if strings.Contains(text, "crash") {
		d.dead = true
		return "", engine.ErrClosed
	}
	return d.fakeEngine.Transliterate(ctx, text, opts)
}

func (d *dyingEngine) Err() error {
	if d.dead {
		return engine.ErrClosed
	}
	return nil
}

func TestPhonemize_EngineStopMidBatch(t *testing.T) {
	de := &dyingEngine{}
	a, err := New(context.Background(), DefaultOptions("deu-Latn"), WithEngine(de), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Err() != nil {
		t.Fatalf("Err before crash = %v; want nil", a.Err())
	}

	got := a.Phonemize(context.Background(), []string{"ab", "crash", "cd", "ef"})
	if len(got) != 4 || got[0] != "a b WORD_BOUNDARY" || got[1] != "" || got[2] != "" || got[3] != "" {
		t.Errorf("Phonemize = %q", got)
	}
	if !errors.Is(a.Err(), engine.ErrClosed) {
		t.Errorf("Err = %v; want ErrClosed", a.Err())
	}
	if n := len(de.calls); n != 1 {
		t.Errorf("engine converted %d lines; want 1, nothing after the crash", n)
	}
}

func TestErr_NilForEnginesWithoutHealth(t *testing.T) {
	a, _ := newTestAdapter(t, DefaultOptions("deu-Latn"))
	a.Phonemize(context.Background(), []string{"bad"})
	if err := a.Err(); err != nil {
		t.Errorf("Err = %v; a failed line must not mark the engine stopped", err)
	}
}

func TestClose_ClosesEngine(t *testing.T) {
	a, fe := newTestAdapter(t, DefaultOptions("deu-Latn"))
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !fe.closed {
		t.Error("engine was not closed")
	}
}

func TestVerboseLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts := DefaultOptions("deu-Latn")
	opts.UseFolding = false
	opts.Verbose = true
	a, err := New(context.Background(), opts, WithEngine(&fakeEngine{}), WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	a.Phonemize(context.Background(), []string{"bad"})

	for _, want := range []string{"epitran", "line could not be phonemized", "skipping folding"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("debug log missing %q:\n%s", want, buf.String())
		}
	}
}

func TestPhonemize_RealEpitran(t *testing.T) {
	python := os.Getenv("G2PFOLD_ENGINE_PYTHON")
	if python == "" {
		t.Skip("set G2PFOLD_ENGINE_PYTHON to a python with epitran to run")
	}

	a, err := New(context.Background(), DefaultOptions("deu-Latn"), WithPython(python), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	got := a.Phonemize(context.Background(), []string{"Hallo Welt!", ""})
	if len(got) != 2 || got[0] == "" || got[1] != "" {
		t.Fatalf("Phonemize = %q", got)
	}
	if strings.Contains(got[0], PhoneBoundary) {
		t.Errorf("phone boundary leaked: %q", got[0])
	}
}
