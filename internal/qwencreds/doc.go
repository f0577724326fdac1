// Package qwencreds отвечает за OAuth-креденшелы Qwen (oauth_creds.json).
//
//   - Store — чтение/запись файла в формате Qwen CLI (expiry_date в мс),
//     запись всегда с правами 0600.
//   - Refresher — обмен refresh_token на свежую пару через OAuth2 API
//     (с обходом WAF: form-encoded + curl User-Agent).
//   - Manager — держит токен в памяти, следит за файлом через fsnotify
//     (внешний крон может его перезаписать) и сам обновляет токен, когда
//     до истечения остаётся меньше RefreshThreshold.
package qwencreds
