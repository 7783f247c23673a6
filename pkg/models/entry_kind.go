package models

// EntryKind is the typed form of a report entry key.
type EntryKind int

const (
	OtherEntryKind EntryKind = iota
	WorkflowNameEntryKind
	InvocationTimeEntryKind
	InvocationHostEntryKind
	FileSizeStageInEntryKind
	FileSizeStageOutEntryKind
	FileTimeStageInEntryKind
	FileTimeStageOutEntryKind
)

var entryKindByKey = map[string]EntryKind{
	KeyWorkflowName:     WorkflowNameEntryKind,
	KeyInvocationTime:   InvocationTimeEntryKind,
	KeyInvocationHost:   InvocationHostEntryKind,
	KeyFileSizeStageIn:  FileSizeStageInEntryKind,
	KeyFileSizeStageOut: FileSizeStageOutEntryKind,
	KeyFileTimeStageIn:  FileTimeStageInEntryKind,
	KeyFileTimeStageOut: FileTimeStageOutEntryKind,
}

// KindOf maps a wire key to its kind. Unrecognized keys map to OtherEntryKind.
func KindOf(key string) EntryKind {
	if kind, ok := entryKindByKey[key]; ok {
		return kind
	}
	return OtherEntryKind
}

func (k EntryKind) String() string {
	for key, kind := range entryKindByKey {
		if kind == k {
			return key
		}
	}
	return "other"
}

// Direction returns the staging direction of a file measurement kind.
func (k EntryKind) Direction() (Direction, bool) {
	switch k {
	case FileSizeStageInEntryKind, FileTimeStageInEntryKind:
		return InputDirection, true
	case FileSizeStageOutEntryKind, FileTimeStageOutEntryKind:
		return OutputDirection, true
	}
	return "", false
}

// InvocationScoped reports whether the kind updates an invocation or one of its files.
func (k EntryKind) InvocationScoped() bool {
	return k != OtherEntryKind && k != WorkflowNameEntryKind
}
