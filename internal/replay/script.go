package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"ammPool/internal/model"
)

const maxScriptLine = 1 << 20

// Script is a parsed operation file. Ops is indexed by 1-based line number;
// blank lines hold nil.
type Script struct {
	Path string
	Ops  []*model.Operation
}

// Lines returns the number of lines in the script.
func (s Script) Lines() uint64 {
	if len(s.Ops) == 0 {
		return 0
	}
	return uint64(len(s.Ops) - 1)
}

// ReadScript parses a JSONL file of operations.
func ReadScript(path string) (Script, error) {
	file, err := os.Open(path)
	if err != nil {
		return Script{}, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()

	ops := []*model.Operation{nil}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScriptLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			ops = append(ops, nil)
			continue
		}
		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return Script{}, fmt.Errorf("script line %d: %w", len(ops), err)
		}
		ops = append(ops, &op)
	}
	if err := scanner.Err(); err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}

	return Script{Path: path, Ops: ops}, nil
}
