package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileBrowser lists directories and MIDI files.
type fileBrowser struct {
	currentDir  string
	files       []fileInfo
	cursor      int
	viewportTop int
	message     string
}

type fileInfo struct {
	name  string
	path  string
	isDir bool
}

func newFileBrowser(dir string) fileBrowser {
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	fb := fileBrowser{currentDir: dir}
	fb.loadFiles()
	return fb
}

func (fb *fileBrowser) loadFiles() {
	fb.files = []fileInfo{}
	fb.viewportTop = 0

	if parent := filepath.Dir(fb.currentDir); parent != fb.currentDir {
		fb.files = append(fb.files, fileInfo{name: "..", path: parent, isDir: true})
	}

	entries, err := os.ReadDir(fb.currentDir)
	if err != nil {
		fb.message = fmt.Sprintf("Error reading directory: %v", err)
		return
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() || strings.HasSuffix(strings.ToLower(entry.Name()), ".mid") {
			fb.files = append(fb.files, fileInfo{
				name:  entry.Name(),
				path:  filepath.Join(fb.currentDir, entry.Name()),
				isDir: entry.IsDir(),
			})
		}
	}

	if fb.cursor >= len(fb.files) {
		fb.cursor = max(0, len(fb.files)-1)
	}
}

// visibleLines is how many entries fit under the header and help text.
func visibleLines(height int) int {
	return max(5, height-9)
}

func (fb *fileBrowser) moveCursor(delta, height int) {
	fb.cursor = min(max(0, fb.cursor+delta), max(0, len(fb.files)-1))

	lines := visibleLines(height)
	if fb.cursor < fb.viewportTop {
		fb.viewportTop = fb.cursor
	}
	if fb.cursor >= fb.viewportTop+lines {
		fb.viewportTop = fb.cursor - lines + 1
	}
}

func (fb *fileBrowser) view(height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("hapticd - Pattern Files") + "\n\n")
	b.WriteString(fmt.Sprintf("Current Directory: %s\n\n", fb.currentDir))

	if len(fb.files) == 0 {
		b.WriteString("No MIDI files or directories found.\n")
	}

	end := min(len(fb.files), fb.viewportTop+visibleLines(height))
	for i := fb.viewportTop; i < end; i++ {
		file := fb.files[i]
		cursor := " "
		if i == fb.cursor {
			cursor = ">"
		}

		name := midiStyle.Render(file.name)
		if file.isDir {
			name = dirStyle.Render(file.name + "/")
		}

		if i == fb.cursor {
			b.WriteString(selectedStyle.Render(fmt.Sprintf("%s %s", cursor, name)) + "\n")
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n", cursor, name))
		}
	}

	b.WriteString("\n")
	if fb.message != "" {
		b.WriteString(errorStyle.Render(fb.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("↑/k: up • ↓/j: down • enter: open • n: new pattern • d: delete • q: quit"))
	return b.String()
}
