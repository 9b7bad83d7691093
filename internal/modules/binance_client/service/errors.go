package service

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// ErrKind — классификация ошибок биржи, на которую завязана вся логика
// ретраев. Коллеры свитчатся по Kind, а не парсят текст.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	// сеть: таймаут коннекта, refused, reset, DNS — можно ретраить и
	// переключать транспорт на read-пути
	KindNetwork
	// запрос ушёл, ответа нет — исход неизвестен, state-changing вызовы
	// слепо не повторяем
	KindTimeout
	// биржа отклонила по рассинхрону часов — ресинк и один повтор
	KindClockSkew
	// не совпал position side (hedge/однонаправленный) — адаптировать флаг
	KindParamMismatch
	// авторитетный отказ (баланс, цена, параметры) — не повторяем
	KindRejected
)

func (k ErrKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindClockSkew:
		return "clock_skew"
	case KindParamMismatch:
		return "param_mismatch"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// Коды биржи, которые мы различаем.
const (
	codeInvalidTimestamp = -1021 // Timestamp for this request is outside of the recvWindow
	codeTimeout          = -1007 // Timeout waiting for response of backend server
	codePositionSide     = -4061 // Order's position side does not match user's setting
	codeNoNeedMarginType = -4046 // No need to change margin type
)

// APIError — ответ биржи с кодом. Всегда авторитетный: сервер запрос видел.
type APIError struct {
	Code       int
	Msg        string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error: code=%d msg=%q http=%d", e.Code, e.Msg, e.HTTPStatus)
}

func (e *APIError) Kind() ErrKind {
	switch e.Code {
	case codeInvalidTimestamp:
		return KindClockSkew
	case codeTimeout:
		return KindTimeout
	case codePositionSide:
		return KindParamMismatch
	}
	if e.HTTPStatus == 504 {
		// шлюз не дождался бэкенда — исход неизвестен
		return KindTimeout
	}
	return KindRejected
}

// KindOf разворачивает любую ошибку слоя до её класса.
func KindOf(err error) ErrKind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	return KindUnknown
}

// Retryable — можно ли повторять вызов на read-пути.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindTimeout
}
