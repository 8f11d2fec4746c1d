package models

// Student defines the student model based on the 'students' table
type Student struct {
	RollNo          string `json:"rollNo" db:"roll_no" example:"21CS001"`
	Name            string `json:"name" db:"name" example:"ASHA VERMA"`
	Branch          string `json:"branch" db:"branch" example:"CSE"`
	Batch           string `json:"batch" db:"batch" example:"2021"`
	DOB             string `json:"dob" db:"dob" example:"2003-05-04"`
	Email           string `json:"email" db:"email" example:"asha@example.edu"`
	Password        string `json:"-" db:"password"`
	PasswordChanged bool   `json:"passwordChanged" db:"password_changed"`
}

// Author returns the attribution snapshot for a submission.
func (s *Student) Author() Author {
	return Author{Name: s.Name, Roll: s.RollNo, Branch: s.Branch, Batch: s.Batch}
}

// Admin defines the admin model based on the 'admin' table
type Admin struct {
	ID       string `json:"id" db:"id"`
	Password string `json:"-" db:"password"`
}
