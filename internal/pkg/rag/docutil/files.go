package docutil

import "os"

// IsSupported 判断文件是否为可处理的文档（按扩展名或 MIME 类型）。
func IsSupported(fileName, mimeType string) bool {
	_, err := DetectFormat(nil, fileName, mimeType)
	return err == nil
}

// EnsureDir 确保目录存在，如果不存在则创建。
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// FileExists 检查文件是否存在。
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists 检查目录是否存在。
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
