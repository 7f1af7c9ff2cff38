package upload

import (
    "bytes"
    "fmt"
    "io"
    "os"
    "path/filepath"
)

// File is the source of one upload. Open is called once per Run and the
// returned reader must yield Size bytes.
type File struct {
    Name string
    Size int64
    Open func() (io.ReadCloser, error)
}

func (f File) validate() error {
    if f.Open == nil { return fmt.Errorf("file %q has no content", f.Name) }
    if f.Size <= 0 { return fmt.Errorf("file %q is empty", f.Name) }
    return nil
}

// OpenFile describes the regular file at path. The file is stat'ed now and
// opened when the upload runs.
func OpenFile(path string) (File, error) {
    fi, err := os.Stat(path)
    if err != nil { return File{}, err }
    if !fi.Mode().IsRegular() { return File{}, fmt.Errorf("%s: not a regular file", path) }
    return File{
        Name: filepath.Base(path),
        Size: fi.Size(),
        Open: func() (io.ReadCloser, error) { return os.Open(path) },
    }, nil
}

// FromBytes describes an in-memory file.
func FromBytes(name string, data []byte) File {
    return File{
        Name: name,
        Size: int64(len(data)),
        Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
    }
}
