package settings

type oscSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}
