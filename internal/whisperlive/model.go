package whisperlive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Model describes a named faster-whisper model size and the Hugging Face
// repository holding its CTranslate2 conversion.
type Model struct {
	Name  string
	Repo  string
	Files []string
}

// Resolved is the launcher-side reading of a model reference. CustomPath is
// set only when the reference looks like a filesystem path; named sizes are
// left to the server, which owns the model-name space.
type Resolved struct {
	Ref        string
	CustomPath string
}

var registry = map[string]Model{
	"tiny": {
		Name:  "tiny",
		Repo:  "Systran/faster-whisper-tiny",
		Files: []string{"config.json", "model.bin", "tokenizer.json", "vocabulary.txt"},
	},
	"base": {
		Name:  "base",
		Repo:  "Systran/faster-whisper-base",
		Files: []string{"config.json", "model.bin", "tokenizer.json", "vocabulary.txt"},
	},
	"small": {
		Name:  "small",
		Repo:  "Systran/faster-whisper-small",
		Files: []string{"config.json", "model.bin", "tokenizer.json", "vocabulary.txt"},
	},
	"medium": {
		Name:  "medium",
		Repo:  "Systran/faster-whisper-medium",
		Files: []string{"config.json", "model.bin", "tokenizer.json", "vocabulary.txt"},
	},
	"large-v3": {
		Name:  "large-v3",
		Repo:  "Systran/faster-whisper-large-v3",
		Files: []string{"config.json", "model.bin", "preprocessor_config.json", "tokenizer.json", "vocabulary.json"},
	},
}

func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupModel(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}

// Resolve interprets a model reference. A reference containing a path
// separator is served from disk via the custom model path; anything else is
// forwarded unchanged. The reference itself is never validated here because
// the server decides which names it accepts.
func Resolve(ref string) Resolved {
	if looksLikePath(ref) {
		return Resolved{Ref: ref, CustomPath: ref}
	}
	return Resolved{Ref: ref}
}

func looksLikePath(ref string) bool {
	return strings.ContainsRune(ref, '/') || strings.ContainsRune(ref, os.PathSeparator)
}

// FileURL returns the resolve URL for one file of the model's snapshot.
func (m Model) FileURL(file string) string {
	return "https://huggingface.co/" + m.Repo + "/resolve/main/" + file
}

// SnapshotDir returns where the pulled snapshot for the named model lives
// below modelDir.
func SnapshotDir(modelDir, name string) string {
	return filepath.Join(modelDir, name)
}

// SnapshotPresent reports whether every file of the model's snapshot exists
// below modelDir.
func SnapshotPresent(modelDir string, model Model) bool {
	dir := SnapshotDir(modelDir, model.Name)
	for _, file := range model.Files {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			return false
		}
	}
	return true
}
