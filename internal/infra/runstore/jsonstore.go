package runstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

const (
	defaultRunsDir = "runs"
	indexFile      = "index.jsonl"
	maskValue      = "********"
)

type JSONStore struct {
	rootDir     string
	runsDirName string
	writeIndex  bool
	secrets     []string
	now         func() time.Time

	mu sync.Mutex
}

type Option func(*JSONStore)

// WithIndex enables a simple JSONL index: runs/index.jsonl
func WithIndex(enabled bool) Option {
	return func(s *JSONStore) { s.writeIndex = enabled }
}

// WithSecrets masks every occurrence of the given values in stored argv and output.
func WithSecrets(values ...string) Option {
	return func(s *JSONStore) {
		for _, v := range values {
			if len(v) >= 4 {
				s.secrets = append(s.secrets, v)
			}
		}
	}
}

// WithNow is useful for tests.
func WithNow(now func() time.Time) Option {
	return func(s *JSONStore) { s.now = now }
}

func NewJSONStore(root string, cfg domain.Config, opts ...Option) *JSONStore {
	runsDir := cfg.Paths.RunsDir
	if strings.TrimSpace(runsDir) == "" {
		runsDir = defaultRunsDir
	}

	s := &JSONStore{
		rootDir:     root,
		runsDirName: runsDir,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.ArtifactStore = (*JSONStore)(nil)

func (s *JSONStore) dir() string {
	if filepath.IsAbs(s.runsDirName) {
		return s.runsDirName
	}
	return filepath.Join(s.rootDir, s.runsDirName)
}

func (s *JSONStore) SaveRun(run domain.GateRun) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &domain.OpError{
			Op:   "runstore.mkdir",
			Kind: domain.KindExecution,
			Path: dir,
			Err:  err,
		}
	}

	ts := run.StartedAt
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC()

	toSave := run
	if toSave.StartedAt.IsZero() {
		toSave.StartedAt = ts
	}

	workflowPart := run.WorkflowName
	if strings.TrimSpace(workflowPart) == "" {
		workflowPart = strings.TrimSuffix(filepath.Base(run.WorkflowPath), filepath.Ext(run.WorkflowPath))
	}
	slug := slugify(workflowPart)
	if slug == "" {
		slug = "run"
	}
	if rev := shortRevision(run.Revision); rev != "" {
		slug += "_" + rev
	}

	base := fmt.Sprintf("%s_%s", ts.Format("20060102T150405Z"), slug)
	id := base
	for n := 2; fileExists(filepath.Join(dir, id+".json")); n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	filename := id + ".json"
	path := filepath.Join(dir, filename)

	if len(s.secrets) > 0 {
		toSave = maskRun(toSave, s.secrets)
	}

	b, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return "", &domain.OpError{
			Op:   "runstore.marshal",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}

	// Atomic-ish write: tmp then rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return "", &domain.OpError{
			Op:   "runstore.write",
			Kind: domain.KindExecution,
			Path: tmp,
			Err:  err,
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", &domain.OpError{
			Op:   "runstore.rename",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}

	if s.writeIndex {
		ref := toSave.Ref()
		ref.ID = id
		_ = s.appendIndex(dir, ref)
	}

	return id, nil
}

func (s *JSONStore) appendIndex(dir string, ref domain.RunRef) error {
	line, err := json.Marshal(ref)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, indexFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

// ListRuns returns stored runs, newest first. The index is used when present;
// otherwise every run file is read.
func (s *JSONStore) ListRuns() ([]domain.RunRef, error) {
	dir := s.dir()

	refs, err := readIndex(filepath.Join(dir, indexFile))
	if err != nil {
		refs, err = scanRuns(dir)
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].StartedAt.Equal(refs[j].StartedAt) {
			return refs[i].ID > refs[j].ID
		}
		return refs[i].StartedAt.After(refs[j].StartedAt)
	})
	return refs, nil
}

func (s *JSONStore) LoadRun(id string) (domain.GateRun, error) {
	id = strings.TrimSuffix(strings.TrimSpace(id), ".json")
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return domain.GateRun{}, &domain.OpError{
			Op:   "runstore.load",
			Kind: domain.KindInvalidConfig,
			Err:  fmt.Errorf("invalid run id %q: %w", id, domain.ErrInvalidConfig),
		}
	}

	path := filepath.Join(s.dir(), id+".json")
	run, err := readRun(path)
	if err != nil {
		return domain.GateRun{}, err
	}
	return run, nil
}

func readRun(path string) (domain.GateRun, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		kind := domain.KindExecution
		if errors.Is(err, os.ErrNotExist) {
			kind = domain.KindNotFound
			err = fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
		return domain.GateRun{}, &domain.OpError{Op: "runstore.load", Kind: kind, Path: path, Err: err}
	}

	var run domain.GateRun
	if err := json.Unmarshal(b, &run); err != nil {
		return domain.GateRun{}, &domain.OpError{
			Op:   "runstore.load",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}
	return run, nil
}

func readIndex(path string) ([]domain.RunRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var refs []domain.RunRef
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ref domain.RunRef
		if err := json.Unmarshal([]byte(line), &ref); err != nil {
			// A torn trailing line is skipped rather than hiding every run.
			continue
		}
		refs = append(refs, ref)
	}
	return refs, sc.Err()
}

func scanRuns(dir string) ([]domain.RunRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.OpError{Op: "runstore.list", Kind: domain.KindExecution, Path: dir, Err: err}
	}

	var refs []domain.RunRef
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		run, err := readRun(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		ref := run.Ref()
		ref.ID = strings.TrimSuffix(name, ".json")
		refs = append(refs, ref)
	}
	return refs, nil
}

// maskRun returns a masked copy (does NOT mutate the input).
func maskRun(run domain.GateRun, secrets []string) domain.GateRun {
	out := run
	out.Cells = make([]domain.CellResult, len(run.Cells))

	for i, c := range run.Cells {
		cp := c
		cp.Provision = maskStep(c.Provision, secrets)
		cp.Steps = make([]domain.StepResult, len(c.Steps))
		for j, st := range c.Steps {
			cp.Steps[j] = maskStep(st, secrets)
		}
		out.Cells[i] = cp
	}
	return out
}

func maskStep(st domain.StepResult, secrets []string) domain.StepResult {
	out := st
	out.Output.Text = maskString(st.Output.Text, secrets)
	if st.Command != nil {
		out.Command = make([]string, len(st.Command))
		for i, a := range st.Command {
			out.Command[i] = maskString(a, secrets)
		}
	}
	if st.Failure != nil {
		f := *st.Failure
		f.Message = maskString(f.Message, secrets)
		out.Failure = &f
	}
	return out
}

func maskString(s string, secrets []string) string {
	for _, v := range secrets {
		s = strings.ReplaceAll(s, v, maskValue)
	}
	return s
}

// IsSensitiveKey reports whether an environment variable name likely holds a credential.
func IsSensitiveKey(k string) bool {
	kk := strings.ToLower(k)
	return strings.Contains(kk, "token") ||
		strings.Contains(kk, "secret") ||
		strings.Contains(kk, "password") ||
		strings.Contains(kk, "api_key") ||
		strings.Contains(kk, "apikey")
}

// SecretsFromEnv collects the values of sensitive variables from environ
// (KEY=VALUE entries, as returned by os.Environ).
func SecretsFromEnv(environ []string) []string {
	var out []string
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			continue
		}
		if IsSensitiveKey(k) {
			out = append(out, v)
		}
	}
	return out
}

func shortRevision(rev string) string {
	rev = slugify(rev)
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// slugify produces a safe filename component.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}
