// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"testing"

	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/models"
)

func TestValidateRequest_Messages(t *testing.T) {
	long := make([]string, 21)
	for i := range long {
		long[i] = "t"
	}

	testCases := []struct {
		name        string
		req         any
		wantField   string
		wantMessage string
	}{
		{
			name:        "required",
			req:         &models.RegisterRequest{Email: "a@b.test", Password: "longenough"},
			wantField:   "username",
			wantMessage: "username is required",
		},
		{
			name:        "string min",
			req:         &models.RegisterRequest{Username: "ab", Email: "a@b.test", Password: "longenough"},
			wantField:   "username",
			wantMessage: "username must be at least 3 characters",
		},
		{
			name:        "oneof",
			req:         &models.RegisterRequest{Username: "abc", Email: "a@b.test", Password: "longenough", Role: "janitor"},
			wantField:   "role",
			wantMessage: "role must be one of: dentist, hygienist, assistant, radiologist, student",
		},
		{
			name:        "nested field",
			req:         &models.UpdateProfileRequest{Preferences: &models.Preferences{AutoSaveInterval: 2}},
			wantField:   "preferences.autoSaveInterval",
			wantMessage: "autoSaveInterval must be at least 5",
		},
		{
			name:        "slice max",
			req:         &models.CreateAnnotationRequest{StudyInstanceUID: "1", Title: "x", Tags: long},
			wantField:   "tags",
			wantMessage: "tags must contain at most 20 items",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			details := validateRequest(tc.req)
			if len(details) != 1 {
				t.Fatalf("Expected one detail, got %+v", details)
			}
			if details[0].Field != tc.wantField || details[0].Message != tc.wantMessage {
				t.Errorf("Expected %s: %q, got %s: %q", tc.wantField, tc.wantMessage, details[0].Field, details[0].Message)
			}
		})
	}

	if d := validateRequest(&models.ShareRequest{UserID: "u", Permission: "read"}); d != nil {
		t.Errorf("Expected no details for a valid request, got %+v", d)
	}
}

func TestValidateTooth(t *testing.T) {
	if fe := validateTooth("tooth", nil); fe != nil {
		t.Errorf("Expected nil tooth to pass, got %+v", fe)
	}

	tooth := &dental.ToothSelection{System: "fdi", Value: "46"}
	if fe := validateTooth("tooth", tooth); fe != nil {
		t.Errorf("Expected FDI 46 to pass, got %+v", fe)
	}
	if tooth.System != dental.SystemFDI {
		t.Errorf("Expected system normalized to FDI, got %s", tooth.System)
	}

	primary := &dental.ToothSelection{System: "universal", Value: "k"}
	if fe := validateTooth("tooth", primary); fe != nil {
		t.Errorf("Expected Universal k to pass, got %+v", fe)
	}
	if primary.Value != "K" {
		t.Errorf("Expected value normalized to K, got %s", primary.Value)
	}

	fe := validateTooth("dentalState.activeTooth", &dental.ToothSelection{System: "Universal", Value: "0"})
	if fe == nil || fe.Field != "dentalState.activeTooth.value" {
		t.Errorf("Expected value error, got %+v", fe)
	}
	fe = validateTooth("tooth", &dental.ToothSelection{System: "Palmer", Value: "1"})
	if fe == nil || fe.Field != "tooth.system" {
		t.Errorf("Expected system error, got %+v", fe)
	}
}
