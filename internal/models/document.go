package models

// GradeLine is one row of the grade table printed on transcripts and grade
// slips. Until the grade module is migrated, the generator falls back to a
// static reference table when no lines are supplied.
type GradeLine struct {
	SubjectCode string  `json:"subject_code"`
	SubjectName string  `json:"subject_name"`
	Units       int     `json:"units"`
	Grade       float64 `json:"grade"`
}

// DocumentData is everything the document generator needs to render one
// printable document. It carries no ambient state; identical inputs produce
// identical output.
type DocumentData struct {
	Request  DocumentRequest
	Student  Student
	Settings Settings
	Grades   []GradeLine
}
