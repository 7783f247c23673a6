package models

// Direction distinguishes the input and output file sets of an invocation.
type Direction string

const (
	InputDirection  Direction = "input"
	OutputDirection Direction = "output"
)

// FileStat describes one file staged into or out of an invocation.
type FileStat struct {
	Name     string `json:"name"`      // File name, unique per invocation and direction
	Size     int64  `json:"size"`      // Bytes
	RealTime int64  `json:"real_time"` // Staging wall-clock time
}

// InvocStat is the resource, timing and staging profile of one task invocation.
type InvocStat struct {
	InvocID     int64      `json:"invoc_id"`
	Timestamp   int64      `json:"timestamp"`           // Set on first sight, never replaced
	TaskID      int64      `json:"task_id"`             // Set on first sight, never replaced
	HostName    string     `json:"host_name,omitempty"` // Execution host, set once
	RealTime    int64      `json:"real_time"`           // Wall-clock time of the invocation
	InputFiles  []FileStat `json:"input_files"`         // Sorted by name
	OutputFiles []FileStat `json:"output_files"`        // Sorted by name
}

// InputFile looks up a staged-in file by name.
func (s InvocStat) InputFile(name string) (FileStat, bool) {
	return findFile(s.InputFiles, name)
}

// OutputFile looks up a staged-out file by name.
func (s InvocStat) OutputFile(name string) (FileStat, bool) {
	return findFile(s.OutputFiles, name)
}

func findFile(files []FileStat, name string) (FileStat, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return FileStat{}, false
}
