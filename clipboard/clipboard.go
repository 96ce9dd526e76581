package clipboard

import (
	"sync"

	"golang.design/x/clipboard"
)

var writeMu sync.Mutex

func Init() error {
	return clipboard.Init()
}

// WriteImage performs a mutex-guarded clipboard write to prevent corruption
// under parallel writes. The pasteboard receives the PNG; most targets paste
// it losslessly.
func WriteImage(png []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// WriteText replaces the clipboard contents with text.
func WriteText(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
