// Command moodcam tracks the mood of known people in front of a camera.
package main

func main() {
	Execute()
}
