package roster

// Entry is one attendee as listed by the upstream roster.
type Entry struct {
	RegistrationID string `json:"registrationId"`
	Name           string `json:"name"`
	Department     string `json:"dept"`
	GraduationYear int    `json:"gradYear"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
}

// ApiResponse models the top-level structure of the upstream roster response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int     `json:"page"`
		PageSize int     `json:"pageSize"`
		Total    int     `json:"total"`
		Items    []Entry `json:"items"`
	} `json:"data"`
}
