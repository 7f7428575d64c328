package pairing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/open-apime/fleet/internal/provider"
)

const pngDataURL = "data:image/png;base64,"

var ErrNoImage = errors.New("pairing: código sem imagem")

// renderImage prefere a imagem do provider; sem ela, gera o QR a partir do código.
func renderImage(p provider.Pairing, size int) (string, error) {
	if p.Base64 != "" {
		if strings.HasPrefix(p.Base64, "data:") {
			return p.Base64, nil
		}
		return pngDataURL + p.Base64, nil
	}

	png, err := qrcode.Encode(p.Code, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("pairing: gerar qrcode: %w", err)
	}
	return pngDataURL + base64.StdEncoding.EncodeToString(png), nil
}

// PNG decodifica a imagem do código.
func (c PairingCode) PNG() ([]byte, error) {
	_, data, ok := strings.Cut(c.Image, ";base64,")
	if !ok || data == "" {
		return nil, ErrNoImage
	}
	png, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("pairing: imagem inválida: %w", err)
	}
	return png, nil
}
