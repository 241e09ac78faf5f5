package extract

import (
	"fmt"
	"os"

	"scenetuner/internal/domain"
)

// Script is everything extracted from one script file.
type Script struct {
	Path       string
	Specs      []domain.ParameterSpec
	Categories domain.CategoryMap
	Scenes     []string
}

// File reads and extracts the script at path.
func File(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewSubSystemError("extract", "Extract.File", domain.ErrParse,
			fmt.Sprintf("read %s: %v", path, err))
	}
	return Source(path, src)
}

// Source extracts a script from text already in memory.
func Source(path string, src []byte) (*Script, error) {
	decl, err := Locate(src)
	if err != nil {
		return nil, err
	}
	return &Script{
		Path:       path,
		Specs:      decl.Specs(),
		Categories: decl.Categories(src),
		Scenes:     Scenes(src),
	}, nil
}
