package handler

import "dealflow/internal/models"

// QueueResponse is one page of the approval queue.
type QueueResponse struct {
	Chains []models.ChainDetail `json:"chains"`
	Count  int                  `json:"count"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}
