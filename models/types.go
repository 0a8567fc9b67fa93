// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"time"

	"github.com/danielhkuo/dental-viewer/dental"
)

// User role constants
const (
	RoleDentist     = "dentist"
	RoleHygienist   = "hygienist"
	RoleAssistant   = "assistant"
	RoleRadiologist = "radiologist"
	RoleStudent     = "student"
	RoleAdmin       = "admin"
)

// Annotation category constants
const (
	CategoryDiagnosis   = "diagnosis"
	CategoryTreatment   = "treatment"
	CategoryObservation = "observation"
	CategoryNote        = "note"
	CategoryFollowup    = "followup"
)

// Annotation status constants
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusResolved = "resolved"
	StatusArchived = "archived"
)

// Annotation priority constants
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Share permission constants
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// Domain types

type Profile struct {
	FirstName     string `json:"firstName" bson:"firstName" validate:"max=50"`
	LastName      string `json:"lastName" bson:"lastName" validate:"max=50"`
	Title         string `json:"title" bson:"title" validate:"max=50"`
	Specialty     string `json:"specialty" bson:"specialty" validate:"max=100"`
	Institution   string `json:"institution" bson:"institution" validate:"max=100"`
	LicenseNumber string `json:"licenseNumber" bson:"licenseNumber" validate:"max=50"`
}

type Preferences struct {
	Theme                string `json:"theme" bson:"theme" validate:"omitempty,oneof=dental-dark dental-light"`
	ToothNumberingSystem string `json:"toothNumberingSystem" bson:"toothNumberingSystem" validate:"omitempty,oneof=FDI Universal"`
	DefaultPresetID      string `json:"defaultPresetId" bson:"defaultPresetId" validate:"max=50"`
	// Seconds between auto-saves
	AutoSaveInterval int    `json:"autoSaveInterval" bson:"autoSaveInterval" validate:"omitempty,min=5,max=3600"`
	Language         string `json:"language" bson:"language" validate:"omitempty,bcp47_language_tag"`
}

// DefaultPreferences is what a freshly registered user starts with
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:                "dental-dark",
		ToothNumberingSystem: string(dental.SystemFDI),
		DefaultPresetID:      dental.PresetPeriapicalLength,
		AutoSaveInterval:     30,
		Language:             "en",
	}
}

type User struct {
	ID           string      `json:"id" bson:"_id"`
	Username     string      `json:"username" bson:"username"`
	Email        string      `json:"email" bson:"email"`
	PasswordHash string      `json:"-" bson:"passwordHash"`
	Role         string      `json:"role" bson:"role"`
	Profile      Profile     `json:"profile" bson:"profile"`
	Preferences  Preferences `json:"preferences" bson:"preferences"`
	IsActive     bool        `json:"isActive" bson:"isActive"`
	LastLogin    *time.Time  `json:"lastLogin" bson:"lastLogin"`
	CreatedAt    time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt" bson:"updatedAt"`
}

type RefreshToken struct {
	Token     string    `json:"-" bson:"_id"`
	UserID    string    `json:"userId" bson:"userId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}

type StudyInfo struct {
	PatientID        string `json:"patientId" bson:"patientId"`
	PatientName      string `json:"patientName" bson:"patientName"`
	StudyDate        string `json:"studyDate" bson:"studyDate"`
	StudyDescription string `json:"studyDescription" bson:"studyDescription"`
	Modality         string `json:"modality" bson:"modality"`
}

type Layout struct {
	Rows    int `json:"rows" bson:"rows" validate:"omitempty,min=1,max=4"`
	Columns int `json:"columns" bson:"columns" validate:"omitempty,min=1,max=4"`
}

// ViewportSnapshot is one viewport's camera and display set
type ViewportSnapshot struct {
	ViewportID            string     `json:"viewportId" bson:"viewportId"`
	DisplaySetInstanceUID string     `json:"displaySetInstanceUID" bson:"displaySetInstanceUID"`
	ImageIndex            int        `json:"imageIndex" bson:"imageIndex" validate:"min=0"`
	Zoom                  float64    `json:"zoom" bson:"zoom" validate:"min=0"`
	Pan                   [2]float64 `json:"pan" bson:"pan"`
	Rotation              float64    `json:"rotation" bson:"rotation"`
	FlipHorizontal        bool       `json:"flipHorizontal" bson:"flipHorizontal"`
	Invert                bool       `json:"invert" bson:"invert"`
	WindowWidth           float64    `json:"windowWidth" bson:"windowWidth"`
	WindowCenter          float64    `json:"windowCenter" bson:"windowCenter"`
}

type ViewportState struct {
	Layout              Layout             `json:"layout" bson:"layout"`
	ActiveViewportIndex int                `json:"activeViewportIndex" bson:"activeViewportIndex" validate:"min=0"`
	Viewports           []ViewportSnapshot `json:"viewports" bson:"viewports" validate:"max=16,dive"`
}

type ToolState struct {
	ActiveTool string                    `json:"activeTool" bson:"activeTool"`
	ToolConfig map[string]map[string]any `json:"toolConfig" bson:"toolConfig"`
}

type MeasurementState struct {
	Measurements []dental.Measurement `json:"measurements" bson:"measurements" validate:"max=1000"`
}

type DentalState struct {
	Theme          string                 `json:"theme" bson:"theme" validate:"omitempty,oneof=dental-dark dental-light"`
	ActiveTooth    *dental.ToothSelection `json:"activeTooth" bson:"activeTooth"`
	ActivePresetID string                 `json:"activePresetId" bson:"activePresetId"`
}

// ViewerState is a versioned viewer snapshot, unique per (user, study, session)
type ViewerState struct {
	ID               string           `json:"id" bson:"_id"`
	UserID           string           `json:"userId" bson:"userId"`
	StudyInstanceUID string           `json:"studyInstanceUID" bson:"studyInstanceUID"`
	SessionID        string           `json:"sessionId" bson:"sessionId"`
	Version          int              `json:"version" bson:"version"`
	StudyInfo        StudyInfo        `json:"studyInfo" bson:"studyInfo"`
	ViewportState    ViewportState    `json:"viewportState" bson:"viewportState"`
	ToolState        ToolState        `json:"toolState" bson:"toolState"`
	MeasurementState MeasurementState `json:"measurementState" bson:"measurementState"`
	DentalState      DentalState      `json:"dentalState" bson:"dentalState"`
	IsAutoSave       bool             `json:"isAutoSave" bson:"isAutoSave"`
	CreatedAt        time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// RecentStudy is one row of the recent-studies listing
type RecentStudy struct {
	StudyInstanceUID string    `json:"studyInstanceUID" bson:"_id"`
	StudyInfo        StudyInfo `json:"studyInfo" bson:"studyInfo"`
	LastAccessed     time.Time `json:"lastAccessed" bson:"lastAccessed"`
	SessionCount     int       `json:"sessionCount" bson:"sessionCount"`
}

type AudioAttachment struct {
	Filename        string  `json:"filename" bson:"filename"`
	OriginalName    string  `json:"originalName" bson:"originalName"`
	MimeType        string  `json:"mimeType" bson:"mimeType"`
	Size            int64   `json:"size" bson:"size"`
	DurationSeconds float64 `json:"durationSeconds" bson:"durationSeconds"`
}

type Share struct {
	UserID     string    `json:"userId" bson:"userId"`
	Permission string    `json:"permission" bson:"permission"`
	SharedAt   time.Time `json:"sharedAt" bson:"sharedAt"`
}

type Annotation struct {
	ID                string                 `json:"id" bson:"_id"`
	UserID            string                 `json:"userId" bson:"userId"`
	StudyInstanceUID  string                 `json:"studyInstanceUID" bson:"studyInstanceUID"`
	SeriesInstanceUID string                 `json:"seriesInstanceUID" bson:"seriesInstanceUID"`
	SOPInstanceUID    string                 `json:"sopInstanceUID" bson:"sopInstanceUID"`
	MeasurementUID    string                 `json:"measurementUid" bson:"measurementUid"`
	Tooth             *dental.ToothSelection `json:"tooth" bson:"tooth"`
	Title             string                 `json:"title" bson:"title"`
	Content           string                 `json:"content" bson:"content"`
	Category          string                 `json:"category" bson:"category"`
	Status            string                 `json:"status" bson:"status"`
	Priority          string                 `json:"priority" bson:"priority"`
	Tags              []string               `json:"tags" bson:"tags"`
	Audio             *AudioAttachment       `json:"audio" bson:"audio"`
	IsPrivate         bool                   `json:"isPrivate" bson:"isPrivate"`
	SharedWith        []Share                `json:"sharedWith" bson:"sharedWith"`
	CreatedAt         time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt" bson:"updatedAt"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type AnnotationStats struct {
	StudyInstanceUID string         `json:"studyInstanceUID"`
	Total            int            `json:"total"`
	ByCategory       map[string]int `json:"byCategory"`
	ByStatus         map[string]int `json:"byStatus"`
	ByPriority       map[string]int `json:"byPriority"`
	WithAudio        int            `json:"withAudio"`
}

// Request types

type RegisterRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=30,alphanum"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8,max=128"`
	Role     string   `json:"role" validate:"omitempty,oneof=dentist hygienist assistant radiologist student"`
	Profile  *Profile `json:"profile" validate:"omitempty"`
}

// LoginRequest accepts either the username or the email in Login
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LogoutRequest drops one refresh token, or every token when All is set
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	All          bool   `json:"all"`
}

type UpdateProfileRequest struct {
	Email       *string      `json:"email" validate:"omitempty,email"`
	Profile     *Profile     `json:"profile" validate:"omitempty"`
	Preferences *Preferences `json:"preferences" validate:"omitempty"`
}

type SaveViewerStateRequest struct {
	StudyInstanceUID string           `json:"studyInstanceUID" validate:"required,max=128"`
	SessionID        string           `json:"sessionId" validate:"required,max=128"`
	ExpectedVersion  *int             `json:"expectedVersion" validate:"omitempty,min=0"`
	StudyInfo        StudyInfo        `json:"studyInfo"`
	ViewportState    ViewportState    `json:"viewportState"`
	ToolState        ToolState        `json:"toolState"`
	MeasurementState MeasurementState `json:"measurementState"`
	DentalState      DentalState      `json:"dentalState"`
}

type CreateAnnotationRequest struct {
	StudyInstanceUID  string                 `json:"studyInstanceUID" validate:"required,max=128"`
	SeriesInstanceUID string                 `json:"seriesInstanceUID" validate:"max=128"`
	SOPInstanceUID    string                 `json:"sopInstanceUID" validate:"max=128"`
	MeasurementUID    string                 `json:"measurementUid" validate:"max=128"`
	Tooth             *dental.ToothSelection `json:"tooth"`
	Title             string                 `json:"title" validate:"required,max=200"`
	Content           string                 `json:"content" validate:"max=5000"`
	Category          string                 `json:"category" validate:"omitempty,oneof=diagnosis treatment observation note followup"`
	Status            string                 `json:"status" validate:"omitempty,oneof=draft active resolved archived"`
	Priority          string                 `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Tags              []string               `json:"tags" validate:"max=20,dive,min=1,max=50"`
	IsPrivate         bool                   `json:"isPrivate"`
	AudioDuration     float64                `json:"audioDuration" validate:"min=0"`
}

type UpdateAnnotationRequest struct {
	Tooth     *dental.ToothSelection `json:"tooth"`
	Title     *string                `json:"title" validate:"omitempty,min=1,max=200"`
	Content   *string                `json:"content" validate:"omitempty,max=5000"`
	Category  *string                `json:"category" validate:"omitempty,oneof=diagnosis treatment observation note followup"`
	Status    *string                `json:"status" validate:"omitempty,oneof=draft active resolved archived"`
	Priority  *string                `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Tags      *[]string              `json:"tags" validate:"omitempty,max=20,dive,min=1,max=50"`
	IsPrivate *bool                  `json:"isPrivate"`
}

type ShareRequest struct {
	UserID     string `json:"userId" validate:"required"`
	Permission string `json:"permission" validate:"required,oneof=read write"`
}

type EnrichRequest struct {
	PresetID    string                 `json:"presetId"`
	Tooth       *dental.ToothSelection `json:"tooth"`
	Measurement dental.Measurement     `json:"measurement"`
}

type ExportRequest struct {
	Measurements []dental.Measurement `json:"measurements"`
}

// Response types

type AuthResponse struct {
	Success      bool   `json:"success"`
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type UserResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ViewerStateResponse struct {
	Success     bool         `json:"success"`
	ViewerState *ViewerState `json:"viewerState"`
}

// AutoSaveResponse is always sent with 200
type AutoSaveResponse struct {
	Success bool   `json:"success"`
	Version int    `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

type ViewerStateListResponse struct {
	Success      bool          `json:"success"`
	ViewerStates []ViewerState `json:"viewerStates"`
}

type RecentStudiesResponse struct {
	Success bool          `json:"success"`
	Studies []RecentStudy `json:"studies"`
}

type AnnotationResponse struct {
	Success    bool       `json:"success"`
	Annotation Annotation `json:"annotation"`
}

type AnnotationListResponse struct {
	Success     bool         `json:"success"`
	Annotations []Annotation `json:"annotations"`
	Pagination  *Pagination  `json:"pagination,omitempty"`
}

type AnnotationStatsResponse struct {
	Success bool            `json:"success"`
	Stats   AnnotationStats `json:"stats"`
}

type PresetsResponse struct {
	Presets []dental.Preset `json:"presets"`
}

type ExportResponse struct {
	Rows []dental.ExportRow `json:"rows"`
}

type EnrichResponse struct {
	Measurement dental.Measurement `json:"measurement"`
	Changed     bool               `json:"changed"`
}

type ToothValuesResponse struct {
	System string   `json:"system"`
	Values []string `json:"values"`
}

type ToothConvertResponse struct {
	From dental.ToothSelection `json:"from"`
	To   dental.ToothSelection `json:"to"`
}

// FieldError is one entry of a validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}
