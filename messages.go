package tokenauth

// Client-facing success messages returned by the HTTP boundary.
const (
	MsgRegistered         = "User registered successfully"
	MsgLoggedIn           = "User login successful"
	MsgTokenRefreshed     = "New token generated"
	MsgLoggedOut          = "Logged out successfully"
	MsgEmailVerified      = "Email verified successfully"
	MsgPasswordReset      = "Password reset successful"
	MsgPasswordChanged    = "Password changed successfully"
	MsgProfileUpdated     = "Profile updated successfully"
	MsgForgotPassword     = "If an account exists for this email, a password reset link has been sent"
	MsgResendVerification = "If an unverified account exists for this email, a verification link has been sent"
)
