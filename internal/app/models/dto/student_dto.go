package dto

// CreateStudentRequest represents an admin adding a student
type CreateStudentRequest struct {
	RollNo string `json:"roll_no" binding:"required" example:"21CS001"`
	Name   string `json:"name" binding:"required" example:"Asha Verma"`
	Branch string `json:"branch" example:"CSE"`
	Batch  string `json:"batch" example:"2021"`
	DOB    string `json:"dob" example:"2003-05-04"`
	Email  string `json:"email" binding:"required,email" example:"asha@example.edu"`
}

// UpdateStudentRequest represents an admin editing a student
type UpdateStudentRequest struct {
	Name   string `json:"name" binding:"required"`
	Branch string `json:"branch"`
	Batch  string `json:"batch"`
	DOB    string `json:"dob"`
	Email  string `json:"email" binding:"required,email"`
}

// SetStudentPasswordRequest represents an admin resetting a student's password
type SetStudentPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required" example:"temporary1"`
}

// ImportResponse reports the outcome of a CSV import
type ImportResponse struct {
	StudentsInserted int `json:"studentsInserted"`
	StudentsSkipped  int `json:"studentsSkipped"`
	ProblemsInserted int `json:"problemsInserted"`
	ProblemsSkipped  int `json:"problemsSkipped"`
}
