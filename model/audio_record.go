package model

// FormatMP3 is the only format the ingest pipeline produces.
const FormatMP3 = "mp3"

// AudioRecord maps a stored audio file to the user who uploaded it.
//
// UserID refers to User.ID but is not a foreign key: the column is indexed
// and nothing cascades. A record whose user disappears is orphaned.
type AudioRecord struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	UserID   string `json:"userId" gorm:"index;size:36;not null"`
	FilePath string `json:"-" gorm:"size:767;not null"` // Content-store location, never exposed
	Format   string `json:"format" gorm:"size:16;not null"`
}

// TableName returns the database table name for the AudioRecord model.
func (AudioRecord) TableName() string {
	return "audio_records"
}

// ContentType returns the MIME type the record is served with.
func (r *AudioRecord) ContentType() string {
	switch r.Format {
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
