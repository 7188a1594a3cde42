package chat

import (
	"encoding/json"
	"strings"

	"github.com/coral-p2025/coral/errors"
	"go.uber.org/zap"
)

// Project2025Fields is the metadata the Project 2025 retrieval tool attaches
// to each document.
type Project2025Fields struct {
	PDFURL          string
	ImageURL        string
	ExcerptHeadline string
	ExcerptSubhead  string
	Excerpt         string
	Concerns        []string
}

// ParseProject2025Fields reads the Project 2025 metadata of doc. The
// concerns field is a JSON list of strings; when it cannot be parsed the
// failure is logged and Concerns is left empty. A subhead of "null" is
// treated as absent.
func ParseProject2025Fields(doc Document) Project2025Fields {
	if doc.Fields == nil {
		return Project2025Fields{}
	}
	f := doc.Fields

	out := Project2025Fields{
		PDFURL:          f["pdfUrl"],
		ImageURL:        f["imageUrl"],
		ExcerptHeadline: f["excerptHeadline"],
		ExcerptSubhead:  f["excerptSubhead"],
		Excerpt:         f["excerpt"],
		Concerns:        []string{},
	}
	if out.ExcerptSubhead == "null" {
		out.ExcerptSubhead = ""
	}

	if raw := f["concerns"]; raw != "" {
		var concerns []string
		if err := json.Unmarshal([]byte(raw), &concerns); err != nil {
			errors.DefaultLogger.Warn("concerns field is not parseable",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		} else if concerns != nil {
			out.Concerns = concerns
		}
	}

	return out
}

// PythonInterpreterOutputFile is a file produced by interpreted code.
type PythonInterpreterOutputFile struct {
	Filename string `json:"filename"`
	B64Data  string `json:"b64_data"`
}

// PythonInterpreterCodeError describes an exception raised by interpreted
// code.
type PythonInterpreterCodeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PythonInterpreterFields is the metadata the Python interpreter tool
// attaches to each document. Success is nil when the tool did not report
// it.
type PythonInterpreterFields struct {
	Snippet     string
	Success     *bool
	CodeRuntime string
	StdOut      string
	StdErr      string
	Error       *PythonInterpreterCodeError
	OutputFile  *PythonInterpreterOutputFile
}

// ParsePythonInterpreterFields reads the interpreter metadata of doc. The
// output_file and error fields hold JSON objects; an unparsable one is
// logged and left nil.
func ParsePythonInterpreterFields(doc Document) PythonInterpreterFields {
	if doc.Fields == nil {
		return PythonInterpreterFields{}
	}
	f := doc.Fields

	out := PythonInterpreterFields{
		Snippet:     f["snippet"],
		CodeRuntime: f["code_runtime"],
		StdOut:      f["std_out"],
		StdErr:      f["std_err"],
	}

	if s := f["success"]; s != "" {
		ok := strings.ToLower(s) == "true"
		out.Success = &ok
	}

	if raw := f["output_file"]; raw != "" {
		var file PythonInterpreterOutputFile
		if err := json.Unmarshal([]byte(raw), &file); err != nil {
			errors.DefaultLogger.Error("could not parse output_file",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		} else {
			out.OutputFile = &file
		}
	}

	if raw := f["error"]; raw != "" {
		var codeErr PythonInterpreterCodeError
		if err := json.Unmarshal([]byte(raw), &codeErr); err != nil {
			errors.DefaultLogger.Error("could not parse error",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		} else {
			out.Error = &codeErr
		}
	}

	return out
}
