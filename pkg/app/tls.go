package app

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// runDomainServers serves HTTPS on :443 and redirects plain HTTP from :80.
func runDomainServers(ctx context.Context, domain string, handler http.Handler, log zerolog.Logger) error {
	tlsCert, keyFile, certFile, err := generateCertificate(domain)
	if err != nil {
		return fmt.Errorf("unable to generate certificate: %w", err)
	}
	defer os.Remove(keyFile)
	defer os.Remove(certFile)

	httpsServer := &http.Server{
		Addr:         ":443",
		Handler:      handler,
		TLSConfig:    &tls.Config{Certificates: []tls.Certificate{tlsCert}, MinVersion: tls.VersionTLS12},
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	httpRedirect := &http.Server{
		Addr:              ":80",
		Handler:           redirectHandler(domain),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpRedirect.Addr).Msg("HTTP redirect server listening")
		if err := httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("redirect server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpRedirect.Shutdown(shutdownCtx)
	}()

	log.Info().Str("domain", domain).Msg("HTTPS server is starting with an ephemeral certificate")
	return serve(ctx, httpsServer, func() error { return httpsServer.ListenAndServeTLS(certFile, keyFile) }, log)
}

// redirectHandler sends every plain HTTP request to the HTTPS origin.
func redirectHandler(domain string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + domain + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}

// generateCertificate produces a self-signed certificate valid for 90 days and writes it to
// temporary files, returning the key path before the certificate path.
func generateCertificate(domain string) (tls.Certificate, string, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		DNSNames:     []string{domain},
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}

	certFile, err := writeTempFile("cert", certPEM)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}
	keyFile, err := writeTempFile("key", keyPEM)
	if err != nil {
		os.Remove(certFile)
		return tls.Certificate{}, "", "", err
	}
	return tlsCert, keyFile, certFile, nil
}

// writeTempFile persists PEM data because ListenAndServeTLS expects file paths.
func writeTempFile(prefix string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "vending-"+prefix)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
