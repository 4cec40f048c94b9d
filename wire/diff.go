package wire

import (
	"strings"
	"time"
)

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// CodeLineChange — одно построчное изменение. Нумерация строк с единицы.
// Для added OldContent пуст, для deleted пуст NewContent.
type CodeLineChange struct {
	LineNumber int        `json:"lineNumber"`
	ChangeType ChangeType `json:"changeType"`
	OldContent string     `json:"oldContent,omitempty"`
	NewContent string     `json:"newContent"`
	Timestamp  int64      `json:"timestamp"`
}

// ComputeLineChanges сравнивает буферы построчно ПО ИНДЕКСУ, без выравнивания
// по содержимому: вставка строки в середине даёт каскад modified для всех
// последующих строк. Это осознанный размен точности на простоту.
func ComputeLineChanges(oldText, newText string) []CodeLineChange {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	n := len(oldLines)
	if len(newLines) > n {
		n = len(newLines)
	}

	now := time.Now().UnixMilli()
	var changes []CodeLineChange
	for i := 0; i < n; i++ {
		var oldLine, newLine string
		if i < len(oldLines) {
			oldLine = oldLines[i]
		}
		if i < len(newLines) {
			newLine = newLines[i]
		}
		if oldLine == newLine {
			continue
		}

		c := CodeLineChange{
			LineNumber: i + 1,
			NewContent: newLine,
			Timestamp:  now,
		}
		switch {
		case oldLine == "" && newLine != "":
			c.ChangeType = ChangeAdded
		case oldLine != "" && newLine == "":
			c.ChangeType = ChangeDeleted
			c.OldContent = oldLine
		default:
			c.ChangeType = ChangeModified
			c.OldContent = oldLine
		}
		changes = append(changes, c)
	}

	return changes
}
