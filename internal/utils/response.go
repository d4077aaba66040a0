package utils

// APIResponse is the envelope every endpoint returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Error:   detail,
	}
}

// CodeResponse carries a machine-readable domain-rule code alongside the
// human message so clients can branch without string matching.
func CodeResponse(code, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}
