package service

import (
	infraerrors "github.com/padlog/padlog/internal/pkg/errors"
)

// 能力密钥缺陷统一按 404 返回，不向探测者区分"不存在/已吊销/已过期/越权"。
var (
	ErrInvalidKey       = infraerrors.NotFound("INVALID_KEY", "capability key not found")
	ErrKeyRevoked       = infraerrors.NotFound("KEY_REVOKED", "capability key has been revoked")
	ErrKeyExpired       = infraerrors.NotFound("KEY_EXPIRED", "capability key has expired")
	ErrPermissionDenied = infraerrors.NotFound("PERMISSION_DENIED", "capability key does not grant access to this resource")
)

var (
	ErrInvalidRequest    = infraerrors.BadRequest("INVALID_REQUEST", "request body is invalid")
	ErrInvalidPath       = infraerrors.BadRequest("INVALID_PATH", "file path is invalid")
	ErrInvalidAuthor     = infraerrors.BadRequest("INVALID_AUTHOR", "author is invalid")
	ErrAuthorMismatch    = infraerrors.BadRequest("AUTHOR_MISMATCH", "author does not match the key binding")
	ErrTypeNotAllowed    = infraerrors.BadRequest("TYPE_NOT_ALLOWED", "append type is not allowed by this key")
	ErrInvalidAppendType = infraerrors.BadRequest("INVALID_APPEND_TYPE", "unknown append type")
	ErrInvalidRef        = infraerrors.BadRequest("INVALID_REF", "ref does not point to a valid target")
)

var (
	ErrFileNotFound   = infraerrors.NotFound("FILE_NOT_FOUND", "file not found")
	ErrFileDeleted    = infraerrors.Gone("FILE_DELETED", "file has been deleted")
	ErrAppendNotFound = infraerrors.NotFound("APPEND_NOT_FOUND", "append not found")
	ErrFileExists     = infraerrors.Conflict("FILE_EXISTS", "file already exists at this path")
)

var (
	ErrTaskAlreadyComplete     = infraerrors.BadRequest("TASK_ALREADY_COMPLETE", "task is already done")
	ErrAlreadyClaimed          = infraerrors.Conflict("ALREADY_CLAIMED", "task is claimed by another executor")
	ErrCannotCancelOthersClaim = infraerrors.BadRequest("CANNOT_CANCEL_OTHERS_CLAIM", "only the claim owner can cancel it")
	ErrCannotRenewOthersClaim  = infraerrors.BadRequest("CANNOT_RENEW_OTHERS_CLAIM", "only the claim owner can renew it")
	ErrWIPLimitExceeded        = infraerrors.TooManyRequests("WIP_LIMIT_EXCEEDED", "active claim limit reached for this key")
	ErrPayloadTooLarge         = infraerrors.PayloadTooLarge("PAYLOAD_TOO_LARGE", "append content exceeds the size limit")
)

var (
	ErrIdempotencyConflict = infraerrors.Conflict("IDEMPOTENCY_CONFLICT", "a request with this idempotency key is still in flight")
	ErrCapabilityNotFound  = ErrInvalidKey
)

var (
	ErrWorkspaceNotFound = infraerrors.NotFound("WORKSPACE_NOT_FOUND", "workspace not found")
	ErrWebhookNotFound   = infraerrors.NotFound("WEBHOOK_NOT_FOUND", "webhook subscription not found")
	ErrAdminUnauthorized = infraerrors.Unauthorized("UNAUTHORIZED", "admin token is missing or invalid")
)
