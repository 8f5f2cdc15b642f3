package main

import (
	"image"
	"image/color"
	"log"
	"path"

	"gocv.io/x/gocv"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/internal/gallery"
	"github.com/dimuls/jdlib/pixbuf/matbuf"
)

// Путь до папки с моделями. Папка должна содержать следующие файлы: dlib_face_recognition_resnet_model_v1.dat,
// shape_predictor_68_face_landmarks.dat. Архивы с этими файлами можно скачать из
// https://github.com/davisking/dlib-models.
const modelsPath = "./models"

// Путь до папки с персонами. Папка должна содержать на первом уровне папки, где название папки ― имя персоны,
// а на втором уровне ― файлы с фотографиями лица соответствующей персоны.
const personsPath = "./persons"

// ID оборудования для получения видеопотока. 0 ― это ID стандартной веб-камеры.
const deviceID = 0

// Синий цвет.
var blue = color.RGBA{
	R: 0,
	G: 0,
	B: 255,
	A: 0,
}

func main() {
	// Инициализация jdlib. Нативная библиотека распаковывается и загружается здесь,
	// модели ― при первом вызове.
	j, err := jdlib.NewWithEmbeddings(
		path.Join(modelsPath, "shape_predictor_68_face_landmarks.dat"),
		path.Join(modelsPath, "dlib_face_recognition_resnet_model_v1.dat"))
	if err != nil {
		log.Fatalf("create jdlib: %v", err)
	}
	defer j.Close()

	// Инициализация базы персон.
	persons, err := gallery.Load(personsPath, func(filePath string) ([]jdlib.FaceDescriptor, error) {
		// Читаем и декодируем изображение.
		img := gocv.IMRead(filePath, gocv.IMReadColor)
		defer img.Close()

		// Если не удалось прочитать файл и декодировать изображение, то пропускаем файл.
		if img.Empty() {
			return nil, gallery.ErrUnreadable
		}

		return embed(j, img)
	})
	if err != nil {
		log.Fatalf("load persons: %v", err)
	}

	// Инициализация видеопотока.
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		log.Fatalf("open video capture: %v", err)
	}
	defer capture.Close()

	// Инициализация окна программы.
	window := gocv.NewWindow("face-recognizer")
	defer window.Close()

	// Инициализация изображения для очередного кадра.
	frame := gocv.NewMat()
	defer frame.Close()

	for {
		// Ждём 1 милисекунду нажатия клавиши на клавиатуре.
		// Если нажата Esc, то выходим из приложения.
		if window.WaitKey(1) == 27 {
			return
		}

		// Пока не получим кадр продолжаем цикл.
		if !capture.Read(&frame) {
			continue
		}

		// Выявляем лица в кадре и получаем их векторы.
		faces, err := embed(j, frame)
		if err != nil {
			log.Fatalf("recognize faces: %v", err)
		}

		for _, face := range faces {
			// Ищем наиболее близкую (по евклиду) персону.
			person, _, ok := persons.Match(*face.Embedding, gallery.DefaultThreshold)

			// Рисуем прямоугольник выявленного лица.
			gocv.Rectangle(&frame, face.Rectangle, blue, 1)

			// Если персона достаточно близка, то пишем её имя над прямоугольником.
			if ok {
				gocv.PutText(&frame, person.Name, image.Point{
					X: face.Rectangle.Min.X,
					Y: face.Rectangle.Min.Y,
				}, gocv.FontHersheyComplex, 1, blue, 1)
			}
		}

		// Рисуем кадр в окне.
		window.IMShow(frame)
	}
}

// Векторизация всех лиц на изображении.
func embed(j *jdlib.Jdlib, img gocv.Mat) ([]jdlib.FaceDescriptor, error) {
	b, err := matbuf.FromMat(img)
	if err != nil {
		return nil, err
	}
	return j.FaceEmbeddingsPixels(b.Pix, b.Height, b.Width)
}
