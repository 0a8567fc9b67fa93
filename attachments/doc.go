// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package attachments stores annotation audio recordings.

Uploads are renamed with NewName before they are stored: a ULID keeps the
names unique and time-sortable, and ValidName lets the storage backends
refuse anything a client made up. Only the audio types in the allow-list
pass NormalizeType.

Two backends implement Storage:

	DiskStorage  files under UPLOAD_DIR
	S3Storage    objects under audio/ in S3_BUCKET

Set AWS_ENDPOINT_URL to point S3Storage at LocalStack or MinIO.
*/
package attachments
