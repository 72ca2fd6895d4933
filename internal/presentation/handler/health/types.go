package health

type healthResponse struct {
	Status    string `json:"status"` // ok or unhealthy
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}
