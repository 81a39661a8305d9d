package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore serves the answer prompts from text files in a directory,
// one file per prompt name. Missing, unreadable or blank files fall back to
// the built-in text. The directory is seeded with the defaults on first use.
type PromptStore struct {
	dir string

	seedOnce sync.Once
	seedErr  error

	mu    sync.RWMutex
	cache map[string]string
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptGroundedSystem: `You are Study Buddy, a study companion that helps students understand their own course materials.

Answer using only the numbered passages supplied with the question. Each passage is labelled [n] with its file name and where it came from.

When answering:
1. Cite the passages you rely on by their number, e.g. [1] or [2][3]
2. If the passages do not contain the answer, say clearly that your materials do not cover it
3. Never invent facts, formulas or references that are not in the passages
4. Explain clearly and encourage the student to explore further`,

	driven.PromptUngroundedSystem: `You are Study Buddy, a study companion. This conversation has no course materials attached, so there are no grounding documents.

Say at the start of your answer that it is not based on the student's materials, then answer from general knowledge as clearly and carefully as you can. Suggest attaching the relevant notes for a grounded answer.`,

	driven.PromptRefusal: `This session has no documents attached, so I can't answer from your materials yet. Add an indexed document to the session and ask again.`,
}

// NewPromptStore returns a store rooted at dir, or ~/.studybuddy/prompts
// when dir is empty. Nothing is written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".studybuddy", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]string)}, nil
}

// Load returns the named prompt.
func (s *PromptStore) Load(name string) (string, error) {
	s.seedOnce.Do(s.seed)

	s.mu.RLock()
	prompt, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return prompt, nil
	}

	prompt, err := s.read(name)
	if err != nil {
		fallback, known := defaultPrompts[name]
		if !known {
			return "", fmt.Errorf("load prompt %q: %w", name, err)
		}
		// Not cached, so a later edit is picked up without Reload.
		return fallback, nil
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()
	return prompt, nil
}

// Reload drops cached prompts so the next Load reads the files again.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

// seed writes any default prompt file that does not exist yet.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		s.seedErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}
	for name, content := range defaultPrompts {
		if err := writeIfMissing(s.path(name), content); err != nil {
			s.seedErr = fmt.Errorf("seed prompt %q: %w", name, err)
			return
		}
	}
	s.seedErr = s.createReadme()
}

// read returns a prompt file's trimmed content. A blank file is treated
// as missing.
func (s *PromptStore) read(name string) (string, error) {
	if s.seedErr != nil {
		return "", s.seedErr
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("%s is empty", s.path(name))
	}
	return prompt, nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0600)
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	return writeIfMissing(filepath.Join(s.dir, "README.md"), `# Study Buddy Prompts

This directory contains customisable prompts used when answering questions.

## Files

- ` + "`grounded_system.txt`" + ` - System prompt for sessions with documents
- ` + "`ungrounded_system.txt`" + ` - System prompt for sessions without documents
- ` + "`refusal.txt`" + ` - Fixed answer when the empty scope policy is "refuse"

## Customisation

Edit any file to customise answers. Changes take effect on the next command
or after restarting the MCP server.

A blank file falls back to the built-in prompt. None of these prompts use
format placeholders.
`)
}
