package dto

import "time"

// StudentLoginRequest represents student login credentials
type StudentLoginRequest struct {
	RollNo   string `json:"roll_no" binding:"required" example:"21CS001"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginRequest represents admin login credentials
type AdminLoginRequest struct {
	ID       string `json:"id" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest represents a self-service password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ForgotPasswordRequest starts the OTP flow
type ForgotPasswordRequest struct {
	RollNo string `json:"roll_no" binding:"required" example:"21CS001"`
	DOB    string `json:"dob" binding:"required" example:"2003-05-04"`
}

// VerifyOTPRequest submits the mailed code
type VerifyOTPRequest struct {
	RollNo string `json:"roll_no" binding:"required"`
	OTP    string `json:"otp" binding:"required,numeric"`
}

// ResetPasswordRequest sets a new password after a verified OTP
type ResetPasswordRequest struct {
	RollNo          string `json:"roll_no" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// SessionResponse describes the logged-in identity
type SessionResponse struct {
	Role            string     `json:"role" example:"user" enums:"user,admin"`
	Subject         string     `json:"subject" example:"21CS001"`
	Name            string     `json:"name,omitempty"`
	PasswordChanged *bool      `json:"passwordChanged,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// OTPSentResponse confirms an OTP was issued
type OTPSentResponse struct {
	ExpiresInSeconds int `json:"expiresInSeconds" example:"300"`
}
