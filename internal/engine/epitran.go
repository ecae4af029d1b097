package engine

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
)

//go:embed epitran_worker.py
var workerScript string

// Config describes how to start an epitran worker.
type Config struct {
	// Python is the interpreter; empty runs DetectPython.
	Python     string
	Language   string
	CEDICTPath string
	Tones      bool
	Ligatures  bool
	// Options are passed to the epitran.Epitran constructor as keyword arguments.
	Options map[string]any
	// Stderr receives the worker's stderr; nil discards it.
	Stderr io.Writer
}

type workerConfig struct {
	Code       string         `json:"code"`
	Tones      bool           `json:"tones"`
	Ligatures  bool           `json:"ligatures"`
	CEDICTFile string         `json:"cedict_file,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

type request struct {
	Text      string `json:"text"`
	Delimiter string `json:"delimiter,omitempty"`
	NormPunc  bool   `json:"normpunc"`
	Ligatures bool   `json:"ligatures"`
}

type reply struct {
	Ready   *bool  `json:"ready,omitempty"`
	Version string `json:"version,omitempty"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Epitran is an Engine backed by a Python process running epitran. Calls are
// serialized; one request is in flight at a time.
type Epitran struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *json.Encoder
	replies chan reply
	done    chan struct{}
	readErr error
	closed  bool
	stopped atomic.Bool // read by Err without mu
	version string
}

// StartEpitran launches a worker for cfg.Language and waits until epitran
// has been constructed. ctx bounds only the startup wait.
func StartEpitran(ctx context.Context, cfg Config) (*Epitran, error) {
	if cfg.Language == "" {
		return nil, errors.New("engine: language is required")
	}
	python := cfg.Python
	if python == "" {
		python = DetectPython()
	}

	wc, err := json.Marshal(workerConfig{
		Code:       cfg.Language,
		Tones:      cfg.Tones,
		Ligatures:  cfg.Ligatures,
		CEDICTFile: cfg.CEDICTPath,
		Options:    cfg.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("encode worker config: %w", err)
	}

	cmd := exec.Command(python, "-u", "-c", workerScript, string(wc))
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, python, err)
	}

	e := &Epitran{
		cmd:     cmd,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		replies: make(chan reply, 1),
		done:    make(chan struct{}),
	}
	go e.readLoop(stdout)

	select {
	case r, ok := <-e.replies:
		if !ok {
			e.kill()
			return nil, fmt.Errorf("%w: worker exited during startup: %v", ErrUnavailable, e.readErr)
		}
		if r.Ready == nil || !*r.Ready {
			e.kill()
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, r.Error)
		}
		e.version = r.Version
	case <-ctx.Done():
		e.kill()
		return nil, ctx.Err()
	}

	return e, nil
}

func (e *Epitran) readLoop(stdout io.Reader) {
	defer close(e.replies)
	defer e.stopped.Store(true)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r reply
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			r = reply{Error: fmt.Sprintf("decode worker reply: %v", err)}
		}
		select {
		case e.replies <- r:
		case <-e.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		e.readErr = err
	} else {
		e.readErr = io.EOF
	}
}

// Err returns ErrClosed once the worker has exited, been killed or been
// closed, and nil while it can still take requests.
func (e *Epitran) Err() error {
	if e.stopped.Load() {
		return ErrClosed
	}
	return nil
}

// Version returns the epitran version reported by the worker.
func (e *Epitran) Version() string { return e.version }

// Transliterate sends text to the worker. If ctx ends before the reply
// arrives the worker is killed and the engine becomes unusable.
func (e *Epitran) Transliterate(ctx context.Context, text string, opts TransOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", ErrClosed
	}
	req := request{Text: text, Delimiter: opts.Delimiter, NormPunc: opts.NormPunc, Ligatures: opts.Ligatures}
	if err := e.enc.Encode(req); err != nil {
		e.killLocked()
		return "", fmt.Errorf("%w: write request: %v", ErrClosed, err)
	}

	select {
	case r, ok := <-e.replies:
		if !ok {
			e.killLocked()
			return "", fmt.Errorf("%w: worker exited: %v", ErrClosed, e.readErr)
		}
		if r.Error != "" {
			return "", fmt.Errorf("epitran: %s", r.Error)
		}
		return r.Output, nil
	case <-ctx.Done():
		e.killLocked()
		return "", ctx.Err()
	}
}

// Close stops the worker and waits for it to exit.
func (e *Epitran) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.stopped.Store(true)
	close(e.done)
	_ = e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("epitran worker: %w", err)
	}
	return nil
}

func (e *Epitran) kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killLocked()
}

func (e *Epitran) killLocked() {
	if e.closed {
		return
	}
	e.closed = true
	e.stopped.Store(true)
	close(e.done)
	_ = e.stdin.Close()
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	_ = e.cmd.Wait()
}
