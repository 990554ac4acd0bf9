package response

// ErrCode is a typed error code enum for consistent API error identification.
// The same codes are pushed to candidates over the session stream.
type ErrCode string

const (
	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrSessionExpired    ErrCode = "SESSION_EXPIRED"
	ErrAlreadySubmitted  ErrCode = "ALREADY_SUBMITTED"
	ErrLoadFailed        ErrCode = "LOAD_FAILED"
	ErrSessionNotActive  ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionTerminated ErrCode = "SESSION_TERMINATED"
	ErrSessionAbandoned  ErrCode = "SESSION_ABANDONED"
	ErrTimeUp            ErrCode = "TIME_UP"

	// ─── Submission ────────────────────────────────────────────────────
	ErrSubmitFailed         ErrCode = "SUBMIT_FAILED"
	ErrSubmissionInProgress ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrConfirmationRequired ErrCode = "CONFIRMATION_REQUIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrSessionExpired:
		return "Sesi ujian telah berakhir. Silakan kembali ke daftar ujian."
	case ErrAlreadySubmitted:
		return "Ujian ini sudah dikumpulkan. Silakan mulai percobaan baru dari daftar ujian."
	case ErrLoadFailed:
		return "Gagal memuat ujian. Periksa koneksi Anda lalu kembali ke daftar ujian."
	case ErrSessionNotActive:
		return "Sesi ujian tidak aktif."
	case ErrSessionTerminated:
		return "Sesi ujian dihentikan karena pelanggaran integritas."
	case ErrSessionAbandoned:
		return "Sesi ujian telah dibatalkan."
	case ErrTimeUp:
		return "Waktu ujian telah habis. Jawaban sedang dikumpulkan."

	// ─── Submission ────────────────────────────────────────────────────
	case ErrSubmitFailed:
		return "Gagal mengumpulkan jawaban. Silakan coba lagi."
	case ErrSubmissionInProgress:
		return "Jawaban sedang dikumpulkan."
	case ErrConfirmationRequired:
		return "Masih ada soal yang belum dijawab. Konfirmasi untuk tetap mengumpulkan."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidAnswer:
		return "Pilihan jawaban tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
