package queue

// HorizonArgs asks the worker to keep every active series generated Days ahead.
type HorizonArgs struct {
	Days int `json:"days"`
}

// Kind returns the job type identifier for River
func (HorizonArgs) Kind() string { return "series_horizon" }
