package saucenao

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"saucetag/internal/quota"
)

type searchResponse struct {
	Header  responseHeader `json:"header"`
	Results []searchResult `json:"results"`
}

type responseHeader struct {
	ShortLimit     flexInt `json:"short_limit"`
	LongLimit      flexInt `json:"long_limit"`
	ShortRemaining flexInt `json:"short_remaining"`
	LongRemaining  flexInt `json:"long_remaining"`
	Status         flexInt `json:"status"`
	Message        string  `json:"message"`
}

func (h responseHeader) quota() *quota.State {
	if h.LongLimit == 0 && h.ShortLimit == 0 && h.LongRemaining == 0 && h.ShortRemaining == 0 {
		return nil
	}
	return &quota.State{
		ShortLimit:     int(h.ShortLimit),
		ShortRemaining: int(h.ShortRemaining),
		LongLimit:      int(h.LongLimit),
		LongRemaining:  int(h.LongRemaining),
	}
}

func (h responseHeader) message(fallback string) string {
	if msg := strings.TrimSpace(h.Message); msg != "" {
		return msg
	}
	return fallback
}

type searchResult struct {
	Header struct {
		Similarity flexString `json:"similarity"`
		IndexID    int        `json:"index_id"`
	} `json:"header"`
	Data struct {
		ExtURLs    []string `json:"ext_urls"`
		GelbooruID flexInt  `json:"gelbooru_id"`
	} `json:"data"`
}

// flexInt accepts both JSON numbers and numeric strings; the API mixes them.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}
